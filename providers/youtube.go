package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"
)

var (
	youtubeIDPattern = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/shorts/|youtube\.com/embed/|youtube\.com/live/)([a-zA-Z0-9_-]{11})`)

	// ISO 8601 duration as returned in contentDetails (PT#H#M#S).
	iso8601Duration = regexp.MustCompile(`PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?`)
)

// ExtractVideoID pulls the 11-character video ID out of the common YouTube
// URL shapes. Returns "" when the URL carries no video ID.
func ExtractVideoID(rawURL string) string {
	m := youtubeIDPattern.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// YouTube fetches video metadata from the YouTube Data API v3 using an API key.
type YouTube struct {
	APIKey string
	// Opts are appended to the service options; tests inject
	// option.WithEndpoint here.
	Opts []option.ClientOption
}

func (y *YouTube) Fetch(ctx context.Context, rawURL string) (*Metadata, error) {
	videoID := ExtractVideoID(rawURL)
	if videoID == "" {
		return nil, fmt.Errorf("%w: no YouTube video ID in %q", ErrBadURL, rawURL)
	}

	opts := append([]option.ClientOption{option.WithAPIKey(y.APIKey)}, y.Opts...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}

	resp, err := svc.Videos.List([]string{"snippet", "statistics", "contentDetails"}).
		Id(videoID).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("youtube videos.list: %w", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}

	item := resp.Items[0]
	meta := &Metadata{
		Platform:   PlatformYouTube,
		ExternalID: videoID,
		SourceURL:  "https://www.youtube.com/watch?v=" + videoID,
	}
	if item.Snippet != nil {
		meta.Title = item.Snippet.Title
		meta.Description = item.Snippet.Description
		meta.ChannelTitle = item.Snippet.ChannelTitle
		meta.ThumbnailURL = bestThumbnail(item.Snippet.Thumbnails)
		if t, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
			meta.PublishedAt = &t
		}
	}
	if item.Statistics != nil {
		meta.Stats.Views = int64(item.Statistics.ViewCount)
		meta.Stats.Likes = int64(item.Statistics.LikeCount)
		meta.Stats.Comments = int64(item.Statistics.CommentCount)
	}
	if item.ContentDetails != nil {
		meta.Stats.DurationSeconds = parseISO8601Duration(item.ContentDetails.Duration)
	}

	if raw, err := json.Marshal(item); err == nil {
		meta.Raw = raw
	}
	return meta, nil
}

func bestThumbnail(t *yt.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	for _, cand := range []*yt.Thumbnail{t.Maxres, t.High, t.Medium, t.Default} {
		if cand != nil && cand.Url != "" {
			return cand.Url
		}
	}
	return ""
}

func parseISO8601Duration(s string) int64 {
	m := iso8601Duration.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var total int64
	for i, mult := range []int64{3600, 60, 1} {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0
		}
		total += n * mult
	}
	return total
}
