package downloader

import (
	"testing"

	"go-streamrip-bot/config"
)

func testCreds() map[string]config.PlatformCredentials {
	return map[string]config.PlatformCredentials{
		"qobuz":      {Enabled: true, MaxQuality: 3, Email: "user@example.com", Password: "secret", AppID: "app"},
		"tidal":      {Enabled: true, MaxQuality: 3},
		"deezer":     {Enabled: true, MaxQuality: 2, ARL: "arl"},
		"soundcloud": {Enabled: true, MaxQuality: 0, ClientID: "client"},
		"lastfm":     {Enabled: true, Source: "qobuz"},
	}
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(testCreds(), nil, nil)

	tests := []struct {
		name      string
		ref       string
		platform  string
		mediaType MediaType
		id        string
		errorType ErrorType
		wantError bool
	}{
		{name: "qobuz open album", ref: "https://open.qobuz.com/album/0060254735180", platform: "qobuz", mediaType: MediaAlbum, id: "0060254735180"},
		{name: "qobuz store album", ref: "https://www.qobuz.com/us-en/album/some-title/abc123xyz", platform: "qobuz", mediaType: MediaAlbum, id: "abc123xyz"},
		{name: "qobuz interpreter", ref: "https://www.qobuz.com/gb-en/interpreter/artist-name/12345", platform: "qobuz", mediaType: MediaArtist, id: "12345"},
		{name: "qobuz without scheme", ref: "open.qobuz.com/track/42", platform: "qobuz", mediaType: MediaTrack, id: "42"},
		{name: "deezer localized track", ref: "https://www.deezer.com/en/track/3135556", platform: "deezer", mediaType: MediaTrack, id: "3135556"},
		{name: "deezer short link", ref: "https://deezer.page.link/abcDEF", platform: "deezer", mediaType: MediaLink, id: "abcDEF"},
		{name: "soundcloud set", ref: "https://soundcloud.com/artist/sets/my-set", platform: "soundcloud", mediaType: MediaPlaylist, id: "artist/sets/my-set"},
		{name: "soundcloud track", ref: "https://soundcloud.com/artist/song", platform: "soundcloud", mediaType: MediaTrack, id: "artist/song"},
		{name: "search reference", ref: "deezer:album:302127", platform: "deezer", mediaType: MediaAlbum, id: "302127"},
		{name: "lastfm playlist", ref: "https://www.last.fm/user/alice/playlists/12345", platform: "lastfm", mediaType: MediaPlaylist, id: "alice/12345"},
		{name: "lastfm artist page", ref: "https://www.last.fm/music/Daft+Punk", wantError: true, errorType: ErrorInvalidReference},
		{name: "unsupported host", ref: "https://www.youtube.com/watch?v=abc", wantError: true, errorType: ErrorUnsupportedPlatform},
		{name: "unsupported scheme", ref: "ftp://open.qobuz.com/album/1", wantError: true, errorType: ErrorUnsupportedPlatform},
		{name: "invalid qobuz path", ref: "https://open.qobuz.com/genre/rock", wantError: true, errorType: ErrorInvalidReference},
		{name: "invalid deezer id", ref: "https://www.deezer.com/track/abc", wantError: true, errorType: ErrorInvalidReference},
		{name: "soundcloud reserved path", ref: "https://soundcloud.com/discover", wantError: true, errorType: ErrorInvalidReference},
		{name: "tidal without token", ref: "https://tidal.com/browse/album/123", wantError: true, errorType: ErrorAuthenticationFailed},
		{name: "unknown reference platform", ref: "napster:track:1", wantError: true, errorType: ErrorUnsupportedPlatform},
		{name: "soundcloud album reference", ref: "soundcloud:album:1", wantError: true, errorType: ErrorInvalidReference},
		{name: "empty", ref: "  ", wantError: true, errorType: ErrorInvalidReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := registry.Resolve(tt.ref)
			if tt.wantError {
				if err == nil {
					t.Fatalf("expected error, got descriptor %+v", desc)
				}
				if !IsDownloadError(err, tt.errorType) {
					t.Errorf("expected %s error, got %v", tt.errorType, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.ref, err)
			}
			if desc.Platform != tt.platform || desc.Type != tt.mediaType || desc.ID != tt.id {
				t.Errorf("Resolve(%q) = %+v, want %s:%s:%s", tt.ref, desc, tt.platform, tt.mediaType, tt.id)
			}
		})
	}
}

func TestRegistryAuthFailureUntilReload(t *testing.T) {
	registry := NewRegistry(testCreds(), nil, nil)

	if err := registry.Ready("deezer"); err != nil {
		t.Fatalf("expected deezer ready, got %v", err)
	}

	registry.MarkAuthFailed("deezer", "invalid arl")

	if _, err := registry.Resolve("https://www.deezer.com/track/1"); !IsDownloadError(err, ErrorAuthenticationFailed) {
		t.Errorf("expected authentication failure after marking, got %v", err)
	}

	for _, status := range registry.Statuses() {
		if status.Name == "deezer" && status.Ready() {
			t.Errorf("expected deezer status to be not ready")
		}
	}

	registry.Reload(testCreds())
	if err := registry.Ready("deezer"); err != nil {
		t.Errorf("expected reload to clear failure, got %v", err)
	}
}

func TestRegistryLastFMFollowsSource(t *testing.T) {
	creds := testCreds()
	registry := NewRegistry(creds, nil, nil)

	p, ok := registry.Platform("lastfm")
	if !ok || p.MaxQuality() != 3 {
		t.Fatalf("expected lastfm to use the qobuz limit, got %v", p)
	}

	registry.MarkAuthFailed("qobuz", "bad password")
	if err := registry.Ready("lastfm"); !IsDownloadError(err, ErrorAuthenticationFailed) {
		t.Errorf("expected lastfm unusable while qobuz is, got %v", err)
	}

	lastfm := creds["lastfm"]
	lastfm.Source = "tidal"
	creds["lastfm"] = lastfm
	registry.Reload(creds)
	if _, err := registry.Resolve("https://last.fm/user/alice/playlists/1"); !IsDownloadError(err, ErrorAuthenticationFailed) {
		t.Errorf("expected unconfigured tidal source to block lastfm, got %v", err)
	}
}

func TestIsLink(t *testing.T) {
	tests := []struct {
		text     string
		expected bool
	}{
		{"https://open.qobuz.com/album/1", true},
		{"open.qobuz.com/album/1", true},
		{"qobuz:track:123", true},
		{"daft punk", false},
		{"discovery", false},
		{"https://example.com/a b", false},
	}
	for _, tt := range tests {
		if got := IsLink(tt.text); got != tt.expected {
			t.Errorf("IsLink(%q) = %v, want %v", tt.text, got, tt.expected)
		}
	}
}

func TestMediaDescriptorString(t *testing.T) {
	d := MediaDescriptor{Platform: "qobuz", Type: MediaAlbum, ID: "abc"}
	if d.String() != "qobuz:album:abc" {
		t.Errorf("unexpected String(): %s", d.String())
	}
}
