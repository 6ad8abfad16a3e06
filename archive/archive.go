// Package archive keeps a best-effort history of provider fetches: the raw
// API payload goes to object storage and a fetch_history row records it.
// Failures here must never fail the fetch that triggered them.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"rechartable/db"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// Store writes snapshots to MinIO and history rows to the database.
// Client may be nil, in which case only the history row is written.
type Store struct {
	Client *minio.Client
	Bucket string
	DB     *db.CompatDB
}

// EnsureBucket creates the snapshot bucket if it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	if s.Client == nil {
		return nil
	}
	exists, err := s.Client.BucketExists(ctx, s.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.Client.MakeBucket(ctx, s.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// Record archives one fetch: payload to object storage (when configured)
// and a fetch_history row. Returns the object key, empty when no object
// was written.
func (s *Store) Record(ctx context.Context, podcastID, provider string, payload []byte) (string, error) {
	objectKey := ""
	if s.Client != nil && len(payload) > 0 {
		objectKey = fmt.Sprintf("snapshots/%s/%s-%d.json", podcastID, provider, time.Now().UnixNano())
		_, err := s.Client.PutObject(ctx, s.Bucket, objectKey, bytes.NewReader(payload),
			int64(len(payload)), minio.PutObjectOptions{ContentType: "application/json"})
		if err != nil {
			return "", fmt.Errorf("put snapshot: %w", err)
		}
	}

	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO fetch_history (id, podcast_id, provider, object_key) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), podcastID, provider, objectKey)
	if err != nil {
		return objectKey, fmt.Errorf("insert fetch_history: %w", err)
	}
	return objectKey, nil
}

// HistoryEntry is one row of a podcast's fetch history.
type HistoryEntry struct {
	ID        string `json:"id"`
	Provider  string `json:"provider"`
	ObjectKey string `json:"object_key,omitempty"`
	FetchedAt string `json:"fetched_at"`
}

// History returns the most recent fetches for a podcast, newest first.
func (s *Store) History(ctx context.Context, podcastID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, provider, object_key, fetched_at
		FROM fetch_history
		WHERE podcast_id = ?
		ORDER BY fetched_at DESC
		LIMIT ?
	`, podcastID, limit)
	if err != nil {
		return nil, fmt.Errorf("query fetch_history: %w", err)
	}
	defer rows.Close()

	entries := make([]HistoryEntry, 0)
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.Provider, &e.ObjectKey, &e.FetchedAt); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
