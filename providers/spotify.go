package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

const (
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyAPIBase  = "https://api.spotify.com/v1"
)

// Spotify fetches show and episode metadata from the Spotify Web API using
// the client-credentials flow.
type Spotify struct {
	ClientID     string
	ClientSecret string
	// TokenURL and APIBase default to the public Spotify endpoints;
	// tests point them at a local server.
	TokenURL string
	APIBase  string
	Market   string
}

func (s *Spotify) httpClient(ctx context.Context) *http.Client {
	tokenURL := s.TokenURL
	if tokenURL == "" {
		tokenURL = spotifyTokenURL
	}
	cfg := &clientcredentials.Config{
		ClientID:     s.ClientID,
		ClientSecret: s.ClientSecret,
		TokenURL:     tokenURL,
	}
	c := cfg.Client(ctx)
	c.Timeout = 15 * time.Second
	return c
}

func (s *Spotify) apiBase() string {
	if s.APIBase != "" {
		return strings.TrimRight(s.APIBase, "/")
	}
	return spotifyAPIBase
}

func (s *Spotify) market() string {
	if s.Market != "" {
		return s.Market
	}
	return "US"
}

// parseSpotifyURL pulls the resource type and ID out of an
// open.spotify.com/{show|episode}/{id} URL.
func parseSpotifyURL(rawURL string) (kind, id string, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", ErrBadURL
	}
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	// Tolerate a locale segment like /intl-de/show/<id>.
	if len(parts) >= 1 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[1] == "" {
		return "", "", ErrBadURL
	}
	switch parts[0] {
	case "show", "episode":
		return parts[0], parts[1], nil
	default:
		return "", "", fmt.Errorf("%w: spotify resource %q is not a show or episode", ErrBadURL, parts[0])
	}
}

type spotifyImage struct {
	URL string `json:"url"`
}

type spotifyShow struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Publisher     string         `json:"publisher"`
	Description   string         `json:"description"`
	Images        []spotifyImage `json:"images"`
	TotalEpisodes int            `json:"total_episodes"`
	Episodes      struct {
		Items []spotifyEpisodeItem `json:"items"`
	} `json:"episodes"`
}

type spotifyEpisodeItem struct {
	Name         string `json:"name"`
	ReleaseDate  string `json:"release_date"`
	DurationMS   int64  `json:"duration_ms"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type spotifyEpisode struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	ReleaseDate  string         `json:"release_date"`
	DurationMS   int64          `json:"duration_ms"`
	Images       []spotifyImage `json:"images"`
	Show         spotifyShow    `json:"show"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

func (s *Spotify) Fetch(ctx context.Context, rawURL string) (*Metadata, error) {
	kind, id, err := parseSpotifyURL(rawURL)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/%ss/%s?market=%s", s.apiBase(), kind, id, s.market())
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("spotify request: %w", err)
	}
	resp, err := s.httpClient(ctx).Do(req)
	if err != nil {
		return nil, fmt.Errorf("spotify fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return nil, fmt.Errorf("%w: spotify %s %s", ErrNotFound, kind, id)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("spotify API: HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("spotify read body: %w", err)
	}

	meta := &Metadata{
		Platform:   PlatformSpotify,
		ExternalID: id,
		Raw:        body,
	}

	switch kind {
	case "show":
		var show spotifyShow
		if err := json.Unmarshal(body, &show); err != nil {
			return nil, fmt.Errorf("spotify decode show: %w", err)
		}
		meta.SourceURL = "https://open.spotify.com/show/" + id
		meta.Title = show.Name
		meta.Description = show.Description
		meta.ChannelTitle = show.Publisher
		if len(show.Images) > 0 {
			meta.ThumbnailURL = show.Images[0].URL
		}
		meta.Stats.EpisodeCount = show.TotalEpisodes
		for _, ep := range show.Episodes.Items {
			meta.Episodes = append(meta.Episodes, Episode{
				Title:           ep.Name,
				URL:             ep.ExternalURLs.Spotify,
				PublishedAt:     ep.ReleaseDate,
				DurationSeconds: ep.DurationMS / 1000,
			})
		}
	case "episode":
		var ep spotifyEpisode
		if err := json.Unmarshal(body, &ep); err != nil {
			return nil, fmt.Errorf("spotify decode episode: %w", err)
		}
		meta.SourceURL = "https://open.spotify.com/episode/" + id
		meta.Title = ep.Name
		meta.Description = ep.Description
		meta.ChannelTitle = ep.Show.Publisher
		if meta.ChannelTitle == "" {
			meta.ChannelTitle = ep.Show.Name
		}
		if len(ep.Images) > 0 {
			meta.ThumbnailURL = ep.Images[0].URL
		}
		meta.Stats.DurationSeconds = ep.DurationMS / 1000
		if t, err := time.Parse("2006-01-02", ep.ReleaseDate); err == nil {
			meta.PublishedAt = &t
		}
	}
	return meta, nil
}
