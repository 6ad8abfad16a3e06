package providers

import (
	"errors"
	"testing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://www.youtube.com/watch?v=Aq5WXmQQooo", "youtube"},
		{"https://youtu.be/UtdGSaJNb-g", "youtube"},
		{"https://m.youtube.com/watch?v=Aq5WXmQQooo", "youtube"},
		{"https://open.spotify.com/show/4rOoJ6Egrf8K2IrywzwOMk", "spotify"},
		{"https://open.spotify.com/episode/512ojhOuo1ktJprKbVcKyQ", "spotify"},
		{"https://feeds.megaphone.fm/some-show", "rss"},
		{"http://example.com/podcast.xml", "rss"},
	}
	for _, tt := range tests {
		got, err := Detect(tt.url)
		if err != nil {
			t.Errorf("Detect(%q) returned error: %v", tt.url, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("Detect(%q) = %q, want %q", tt.url, got, tt.expected)
		}
	}
}

func TestDetect_RejectsBadURLs(t *testing.T) {
	for _, u := range []string{"", "not a url", "ftp://example.com/feed", "javascript:alert(1)"} {
		if _, err := Detect(u); !errors.Is(err, ErrBadURL) {
			t.Errorf("Detect(%q): expected ErrBadURL, got %v", u, err)
		}
	}
}

func TestRegistry_UnsupportedPlatform(t *testing.T) {
	reg := NewRegistry()
	// No clients registered: every valid URL resolves to ErrUnsupported.
	_, err := reg.Fetch(t.Context(), "https://www.youtube.com/watch?v=Aq5WXmQQooo")
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
}

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		url string
		id  string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/", ""},
		{"https://example.com/watch?v=tooshort", ""},
	}
	for _, tt := range tests {
		if got := ExtractVideoID(tt.url); got != tt.id {
			t.Errorf("ExtractVideoID(%q) = %q, want %q", tt.url, got, tt.id)
		}
	}
}

func TestParseISO8601Duration(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"PT4M13S", 253},
		{"PT1H2M3S", 3723},
		{"PT45S", 45},
		{"PT2H", 7200},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		if got := parseISO8601Duration(tt.in); got != tt.want {
			t.Errorf("parseISO8601Duration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseItunesDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"1860", 1860},
		{"31:00", 1860},
		{"1:02:30", 3750},
		{"", 0},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := parseItunesDuration(tt.in); got != tt.want {
			t.Errorf("parseItunesDuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseSpotifyURL(t *testing.T) {
	kind, id, err := parseSpotifyURL("https://open.spotify.com/show/4rOoJ6Egrf8K2IrywzwOMk")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != "show" || id != "4rOoJ6Egrf8K2IrywzwOMk" {
		t.Errorf("got (%q, %q)", kind, id)
	}

	kind, id, err = parseSpotifyURL("https://open.spotify.com/intl-de/episode/512ojhOuo1ktJprKbVcKyQ?si=abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if kind != "episode" || id != "512ojhOuo1ktJprKbVcKyQ" {
		t.Errorf("got (%q, %q)", kind, id)
	}

	if _, _, err := parseSpotifyURL("https://open.spotify.com/artist/abc"); err == nil {
		t.Error("expected error for artist URL")
	}
	if _, _, err := parseSpotifyURL("https://open.spotify.com/"); err == nil {
		t.Error("expected error for bare host")
	}
}
