// Package providers fetches descriptive and statistical metadata for a pasted
// URL from the matching third-party API (YouTube Data API, Spotify Web API, or
// a podcast RSS feed) and normalizes it into a Metadata value.
package providers

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

const (
	PlatformYouTube = "youtube"
	PlatformSpotify = "spotify"
	PlatformRSS     = "rss"
)

var (
	// ErrBadURL means the URL does not identify a fetchable resource.
	ErrBadURL = errors.New("unrecognized or malformed source URL")
	// ErrNotFound means the provider reported no resource for the ID.
	ErrNotFound = errors.New("source not found at provider")
	// ErrUnsupported means no client is registered for the detected platform.
	ErrUnsupported = errors.New("unsupported platform")
)

// Stats holds the platform counters a provider exposes. Fields that a
// platform does not report stay zero and are omitted from JSON.
type Stats struct {
	Views           int64 `json:"views,omitempty"`
	Likes           int64 `json:"likes,omitempty"`
	Comments        int64 `json:"comments,omitempty"`
	Followers       int64 `json:"followers,omitempty"`
	Popularity      int   `json:"popularity,omitempty"`
	EpisodeCount    int   `json:"episode_count,omitempty"`
	DurationSeconds int64 `json:"duration_seconds,omitempty"`
}

// Episode is one entry of a show's episode list.
type Episode struct {
	Title           string `json:"title"`
	URL             string `json:"url,omitempty"`
	PublishedAt     string `json:"published_at,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
	Downloads       int64  `json:"downloads"`
}

// Metadata is the normalized result of one provider fetch.
type Metadata struct {
	Platform     string
	ExternalID   string
	SourceURL    string
	Title        string
	Description  string
	ChannelTitle string
	ThumbnailURL string
	PublishedAt  *time.Time
	Stats        Stats
	Episodes     []Episode
	// Raw is the provider payload as received, kept for snapshot archival.
	Raw []byte
}

// Client fetches metadata for one platform.
type Client interface {
	Fetch(ctx context.Context, rawURL string) (*Metadata, error)
}

// Registry routes a pasted URL to the client for its platform.
type Registry struct {
	clients map[string]Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]Client)}
}

func (r *Registry) Register(platform string, c Client) {
	r.clients[platform] = c
}

// Fetch detects the platform for rawURL and invokes the matching client.
func (r *Registry) Fetch(ctx context.Context, rawURL string) (*Metadata, error) {
	platform, err := Detect(rawURL)
	if err != nil {
		return nil, err
	}
	c, ok := r.clients[platform]
	if !ok {
		return nil, ErrUnsupported
	}
	return c.Fetch(ctx, rawURL)
}

// Detect classifies a URL as youtube, spotify, or rss. Anything that is a
// valid http(s) URL but not a known platform is treated as a podcast feed.
func Detect(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", ErrBadURL
	}
	host := strings.ToLower(parsed.Hostname())
	switch {
	case host == "youtube.com" || host == "www.youtube.com" || host == "m.youtube.com" || host == "youtu.be":
		return PlatformYouTube, nil
	case host == "open.spotify.com" || host == "spotify.com" || host == "www.spotify.com":
		return PlatformSpotify, nil
	default:
		return PlatformRSS, nil
	}
}
