package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// maxFeedEpisodes caps how many feed items are copied into the record.
const maxFeedEpisodes = 100

// RSS fetches podcast metadata by parsing the show's RSS/Atom feed directly.
// It covers shows hosted outside YouTube and Spotify.
type RSS struct {
	Parser *gofeed.Parser
}

func NewRSS() *RSS {
	return &RSS{Parser: gofeed.NewParser()}
}

func (r *RSS) Fetch(ctx context.Context, rawURL string) (*Metadata, error) {
	feed, err := r.Parser.ParseURLWithContext(rawURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if feed == nil || feed.Title == "" {
		return nil, fmt.Errorf("%w: feed has no title", ErrNotFound)
	}

	meta := &Metadata{
		Platform:    PlatformRSS,
		ExternalID:  rawURL,
		SourceURL:   rawURL,
		Title:       feed.Title,
		Description: feed.Description,
	}
	if feed.ITunesExt != nil && feed.ITunesExt.Author != "" {
		meta.ChannelTitle = feed.ITunesExt.Author
	} else if len(feed.Authors) > 0 {
		meta.ChannelTitle = feed.Authors[0].Name
	}
	if feed.Image != nil {
		meta.ThumbnailURL = feed.Image.URL
	}
	if feed.PublishedParsed != nil {
		meta.PublishedAt = feed.PublishedParsed
	}
	meta.Stats.EpisodeCount = len(feed.Items)

	for i, item := range feed.Items {
		if i >= maxFeedEpisodes {
			break
		}
		ep := Episode{Title: item.Title, URL: item.Link}
		if item.PublishedParsed != nil {
			ep.PublishedAt = item.PublishedParsed.UTC().Format(time.RFC3339)
		}
		if item.ITunesExt != nil {
			ep.DurationSeconds = parseItunesDuration(item.ITunesExt.Duration)
		}
		meta.Episodes = append(meta.Episodes, ep)
	}

	if raw, err := json.Marshal(feed); err == nil {
		meta.Raw = raw
	}
	return meta, nil
}

// parseItunesDuration handles both plain seconds ("1860") and clock form
// ("31:00" or "1:02:30").
func parseItunesDuration(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if !strings.Contains(s, ":") {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0
		}
		return n
	}
	parts := strings.Split(s, ":")
	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}
