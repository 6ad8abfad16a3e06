// Package podcasts implements the podcast record endpoints: URL-based
// metadata fetch, CRUD, refresh, fetch history, and the analytics
// sub-resources.
package podcasts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"rechartable/archive"
	"rechartable/auth"
	"rechartable/db"
	"rechartable/httputil"
	"rechartable/providers"
	"rechartable/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxTitleLen = 300 // characters, not bytes

// clampTitle cuts an overlong provider title down to the limit on a rune
// boundary, so multibyte titles never end up as broken UTF-8.
func clampTitle(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleLen {
		return s
	}
	return string([]rune(s)[:maxTitleLen])
}

// Handler holds dependencies for podcast record endpoints.
type Handler struct {
	DB        *db.CompatDB
	Providers *providers.Registry
	Archive   *archive.Store
}

// owned is the slice of a record needed for ownership checks and refresh.
type owned struct {
	ID        string
	UserID    string
	Platform  string
	SourceURL string
}

// loadOwned resolves a podcast by ID and enforces the ownership check
// (owner or admin). Missing and foreign records both read as 404.
func (h *Handler) loadOwned(r *http.Request, podcastID string) (*owned, int, string) {
	if _, err := uuid.Parse(podcastID); err != nil {
		return nil, 400, "invalid podcast id"
	}
	var o owned
	err := h.DB.QueryRowContext(r.Context(),
		`SELECT id, user_id, platform, source_url FROM podcasts WHERE id = ?`, podcastID,
	).Scan(&o.ID, &o.UserID, &o.Platform, &o.SourceURL)
	if err == sql.ErrNoRows {
		return nil, 404, "podcast not found"
	}
	if err != nil {
		return nil, 500, "db error"
	}
	userID := r.Context().Value(auth.UserIDKey).(string)
	if o.UserID != userID && !auth.IsAdmin(r) {
		return nil, 404, "podcast not found"
	}
	return &o, 0, ""
}

func parseJSONColumn(raw string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return map[string]interface{}{}
	}
	return v
}

// record loads the full podcast document for API responses, with the JSON
// columns parsed back into nested values.
func (h *Handler) record(ctx context.Context, podcastID string) (map[string]interface{}, error) {
	var (
		id, userID, platform, externalID, sourceURL, title, description string
		channelTitle, thumbnailURL                                      string
		publishedAt                                                     sql.NullString
		stats, episodes, audience, rankings, monetization               string
		totalDownloads                                                  int64
		createdAt, updatedAt                                            string
	)
	err := h.DB.QueryRowContext(ctx, `
		SELECT id, user_id, platform, external_id, source_url, title, description,
		       channel_title, thumbnail_url, published_at,
		       stats, episodes, audience, rankings, monetization,
		       total_downloads, created_at, updated_at
		FROM podcasts WHERE id = ?
	`, podcastID).Scan(&id, &userID, &platform, &externalID, &sourceURL, &title, &description,
		&channelTitle, &thumbnailURL, &publishedAt,
		&stats, &episodes, &audience, &rankings, &monetization,
		&totalDownloads, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec := map[string]interface{}{
		"id": id, "user_id": userID, "platform": platform,
		"external_id": externalID, "source_url": sourceURL,
		"title": title, "description": description,
		"channel_title": channelTitle, "thumbnail_url": thumbnailURL,
		"stats":        parseJSONColumn(stats),
		"episodes":     parseJSONColumn(episodes),
		"audience":     parseJSONColumn(audience),
		"rankings":     parseJSONColumn(rankings),
		"monetization": parseJSONColumn(monetization),
		"total_downloads": totalDownloads,
		"created_at":      createdAt, "updated_at": updatedAt,
	}
	if publishedAt.Valid {
		rec["published_at"] = publishedAt.String
	}
	return rec, nil
}

func sumDownloads(eps []providers.Episode) int64 {
	var total int64
	for _, ep := range eps {
		total += ep.Downloads
	}
	return total
}

// FetchRequest is the JSON body for POST /api/v1/podcasts/fetch.
type FetchRequest struct {
	URL string `json:"url"`
}

// HandleFetch resolves a pasted URL against its provider and creates the
// podcast record, or updates the caller's existing record for the same
// external source.
func (h *Handler) HandleFetch(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)
	httputil.MaxBody(r, httputil.DefaultBodyLimit)

	var req FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "invalid request body")
		return
	}
	if req.URL == "" {
		httputil.WriteError(w, 400, "url is required")
		return
	}

	platform, err := providers.Detect(req.URL)
	if err != nil {
		httputil.WriteError(w, 400, "url must be a valid http or https URL")
		return
	}

	start := time.Now()
	meta, err := h.Providers.Fetch(r.Context(), req.URL)
	telemetry.ObserveFetch(platform, start, err)
	if err != nil {
		h.writeFetchError(w, err)
		return
	}
	if meta.Title == "" {
		httputil.WriteError(w, 502, "provider returned incomplete metadata")
		return
	}

	podcastID, created, err := h.upsertRecord(r.Context(), userID, meta)
	if err != nil {
		log.Printf("upsert podcast for user %s: %v", userID, err)
		httputil.WriteError(w, 500, "failed to save podcast")
		return
	}

	h.archiveSnapshot(r.Context(), podcastID, meta)

	rec, err := h.record(r.Context(), podcastID)
	if err != nil {
		httputil.WriteError(w, 500, "failed to load podcast")
		return
	}
	status := 200
	if created {
		status = 201
	}
	httputil.WriteJSON(w, status, rec)
}

func (h *Handler) writeFetchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, providers.ErrBadURL), errors.Is(err, providers.ErrUnsupported):
		httputil.WriteError(w, 400, "unsupported or malformed source URL")
	case errors.Is(err, providers.ErrNotFound):
		httputil.WriteError(w, 404, "source not found at provider")
	default:
		httputil.WriteError(w, 502, "provider fetch failed")
	}
}

// upsertRecord creates a podcast for (user, platform, external_id) or
// updates the existing one. Returns the record ID and whether it was created.
func (h *Handler) upsertRecord(ctx context.Context, userID string, meta *providers.Metadata) (string, bool, error) {
	title := clampTitle(meta.Title)
	statsJSON, _ := json.Marshal(meta.Stats)
	episodesJSON, _ := json.Marshal(meta.Episodes)
	if meta.Episodes == nil {
		episodesJSON = []byte("[]")
	}
	var publishedAt interface{}
	if meta.PublishedAt != nil {
		publishedAt = meta.PublishedAt.UTC().Format(time.RFC3339)
	}
	totalDownloads := sumDownloads(meta.Episodes)

	podcastID := ""
	created := false
	newID := uuid.New().String()
	err := db.WithTx(ctx, h.DB, func(conn *db.CompatConn) error {
		// ON CONFLICT makes concurrent first fetches of the same source
		// safe: the loser updates instead of tripping the unique constraint.
		_, err := conn.ExecContext(ctx, `
			INSERT INTO podcasts (id, user_id, platform, external_id, source_url,
			                      title, description, channel_title, thumbnail_url,
			                      published_at, stats, episodes, total_downloads)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (user_id, platform, external_id) DO UPDATE SET
				title = excluded.title,
				description = excluded.description,
				channel_title = excluded.channel_title,
				thumbnail_url = excluded.thumbnail_url,
				published_at = excluded.published_at,
				stats = excluded.stats,
				episodes = excluded.episodes,
				total_downloads = excluded.total_downloads,
				updated_at = `+h.DB.NowUTC()+`
		`, newID, userID, meta.Platform, meta.ExternalID, meta.SourceURL,
			title, meta.Description, meta.ChannelTitle, meta.ThumbnailURL,
			publishedAt, string(statsJSON), string(episodesJSON), totalDownloads)
		if err != nil {
			return err
		}
		// An existing row keeps its original id; only a fresh insert
		// carries newID.
		if err := conn.QueryRowContext(ctx,
			`SELECT id FROM podcasts WHERE user_id = ? AND platform = ? AND external_id = ?`,
			userID, meta.Platform, meta.ExternalID,
		).Scan(&podcastID); err != nil {
			return err
		}
		created = podcastID == newID
		return nil
	})
	return podcastID, created, err
}

// archiveSnapshot records the raw provider payload. Best effort: a failed
// snapshot is logged and the request continues.
func (h *Handler) archiveSnapshot(ctx context.Context, podcastID string, meta *providers.Metadata) {
	if h.Archive == nil {
		return
	}
	if _, err := h.Archive.Record(ctx, podcastID, meta.Platform, meta.Raw); err != nil {
		log.Printf("snapshot archive for podcast %s: %v", podcastID, err)
		if telemetry.SnapshotFailures != nil {
			telemetry.SnapshotFailures.Inc()
		}
		return
	}
	if telemetry.SnapshotsArchived != nil {
		telemetry.SnapshotsArchived.Inc()
	}
}

// HandleList returns the caller's podcast records, most recently updated first.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(auth.UserIDKey).(string)

	rows, err := h.DB.QueryContext(r.Context(), `
		SELECT id, platform, external_id, source_url, title, channel_title,
		       thumbnail_url, total_downloads, created_at, updated_at
		FROM podcasts
		WHERE user_id = ?
		ORDER BY updated_at DESC
		LIMIT 200
	`, userID)
	if err != nil {
		httputil.WriteError(w, 500, "failed to list podcasts")
		return
	}
	defer rows.Close()

	items := make([]map[string]interface{}, 0)
	for rows.Next() {
		var id, platform, externalID, sourceURL, title, channelTitle, thumbnailURL string
		var totalDownloads int64
		var createdAt, updatedAt string
		if err := rows.Scan(&id, &platform, &externalID, &sourceURL, &title, &channelTitle,
			&thumbnailURL, &totalDownloads, &createdAt, &updatedAt); err != nil {
			continue
		}
		items = append(items, map[string]interface{}{
			"id": id, "platform": platform, "external_id": externalID,
			"source_url": sourceURL, "title": title, "channel_title": channelTitle,
			"thumbnail_url": thumbnailURL, "total_downloads": totalDownloads,
			"created_at": createdAt, "updated_at": updatedAt,
		})
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"podcasts": items})
}

// HandleGet returns one full podcast record.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	o, status, msg := h.loadOwned(r, chi.URLParam(r, "id"))
	if status != 0 {
		httputil.WriteError(w, status, msg)
		return
	}
	rec, err := h.record(r.Context(), o.ID)
	if err != nil {
		httputil.WriteError(w, 500, "failed to load podcast")
		return
	}
	httputil.WriteJSON(w, 200, rec)
}

// UpdateRequest carries the editable descriptive fields. Nil means
// "leave unchanged".
type UpdateRequest struct {
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	ChannelTitle *string `json:"channel_title"`
	ThumbnailURL *string `json:"thumbnail_url"`
}

// HandleUpdate applies a partial update to the descriptive fields.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	httputil.MaxBody(r, httputil.DefaultBodyLimit)
	o, status, msg := h.loadOwned(r, chi.URLParam(r, "id"))
	if status != 0 {
		httputil.WriteError(w, status, msg)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, 400, "invalid request body")
		return
	}

	sets := []string{}
	args := []interface{}{}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		if t == "" || utf8.RuneCountInString(t) > maxTitleLen {
			httputil.WriteError(w, 400, "title must be 1-300 characters")
			return
		}
		sets = append(sets, "title = ?")
		args = append(args, t)
	}
	if req.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *req.Description)
	}
	if req.ChannelTitle != nil {
		sets = append(sets, "channel_title = ?")
		args = append(args, *req.ChannelTitle)
	}
	if req.ThumbnailURL != nil {
		sets = append(sets, "thumbnail_url = ?")
		args = append(args, *req.ThumbnailURL)
	}
	if len(sets) == 0 {
		httputil.WriteError(w, 400, "no updatable fields in request")
		return
	}

	sets = append(sets, "updated_at = "+h.DB.NowUTC())
	args = append(args, o.ID)
	query := "UPDATE podcasts SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	if _, err := h.DB.ExecContext(r.Context(), query, args...); err != nil {
		httputil.WriteError(w, 500, "failed to update podcast")
		return
	}

	rec, err := h.record(r.Context(), o.ID)
	if err != nil {
		httputil.WriteError(w, 500, "failed to load podcast")
		return
	}
	httputil.WriteJSON(w, 200, rec)
}

// HandleDelete removes a podcast record and everything attached to it.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	o, status, msg := h.loadOwned(r, chi.URLParam(r, "id"))
	if status != 0 {
		httputil.WriteError(w, status, msg)
		return
	}
	if _, err := h.DB.ExecContext(r.Context(), `DELETE FROM podcasts WHERE id = ?`, o.ID); err != nil {
		httputil.WriteError(w, 500, "failed to delete podcast")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"success": true, "message": "podcast deleted"})
}

// HandleRefresh re-fetches the record's source from its provider and
// refreshes the stored stats.
func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	o, status, msg := h.loadOwned(r, chi.URLParam(r, "id"))
	if status != 0 {
		httputil.WriteError(w, status, msg)
		return
	}

	start := time.Now()
	meta, err := h.Providers.Fetch(r.Context(), o.SourceURL)
	telemetry.ObserveFetch(o.Platform, start, err)
	if err != nil {
		h.writeFetchError(w, err)
		return
	}

	statsJSON, _ := json.Marshal(meta.Stats)
	episodesJSON, _ := json.Marshal(meta.Episodes)
	if meta.Episodes == nil {
		episodesJSON = []byte("[]")
	}
	title := clampTitle(meta.Title)
	if _, err := h.DB.ExecContext(r.Context(), `
		UPDATE podcasts
		SET title = ?, description = ?, channel_title = ?, thumbnail_url = ?,
		    stats = ?, episodes = ?, total_downloads = ?,
		    updated_at = `+h.DB.NowUTC()+`
		WHERE id = ?
	`, title, meta.Description, meta.ChannelTitle, meta.ThumbnailURL,
		string(statsJSON), string(episodesJSON), sumDownloads(meta.Episodes), o.ID); err != nil {
		httputil.WriteError(w, 500, "failed to refresh podcast")
		return
	}

	h.archiveSnapshot(r.Context(), o.ID, meta)

	rec, err := h.record(r.Context(), o.ID)
	if err != nil {
		httputil.WriteError(w, 500, "failed to load podcast")
		return
	}
	httputil.WriteJSON(w, 200, rec)
}

// HandleHistory lists the record's fetch history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	o, status, msg := h.loadOwned(r, chi.URLParam(r, "id"))
	if status != 0 {
		httputil.WriteError(w, status, msg)
		return
	}
	if h.Archive == nil {
		httputil.WriteJSON(w, 200, map[string]interface{}{"history": []interface{}{}})
		return
	}
	entries, err := h.Archive.History(r.Context(), o.ID, 50)
	if err != nil {
		httputil.WriteError(w, 500, "failed to list history")
		return
	}
	httputil.WriteJSON(w, 200, map[string]interface{}{"history": entries})
}
