package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go-streamrip-bot/config"
)

// flexID decodes ids that some APIs send as numbers and others as strings.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		s = ""
	}
	*f = flexID(s)
	return nil
}

type named struct {
	Name string `json:"name"`
}

type titled struct {
	Title string `json:"title"`
}

func invalidReference(platform string, u *url.URL) error {
	return NewDownloadError(ErrorInvalidReference, fmt.Sprintf("%s does not recognise %s", platform, u.Path)).
		WithContext("url", u.String())
}

func limitResults(results []SearchResult, limit int) []SearchResult {
	if limit > 0 && len(results) > limit {
		return results[:limit]
	}
	return results
}

// Qobuz

var qobuzPath = regexp.MustCompile(`^/(?:[a-z]{2}-[a-z]{2}/)?(album|track|playlist|artist|interpreter|label)/(?:[^/]+/)?([A-Za-z0-9]+)/?$`)

type qobuzPlatform struct {
	creds   config.PlatformCredentials
	catalog *Catalog
}

func (p *qobuzPlatform) Name() string  { return "qobuz" }
func (p *qobuzPlatform) Emoji() string { return "🟦" }

func (p *qobuzPlatform) Hosts() []string {
	return []string{"qobuz.com", "open.qobuz.com", "play.qobuz.com"}
}

func (p *qobuzPlatform) MaxQuality() Quality { return Quality(p.creds.MaxQuality) }

func (p *qobuzPlatform) SearchTypes() []MediaType {
	return []MediaType{MediaTrack, MediaAlbum, MediaArtist, MediaPlaylist}
}

func (p *qobuzPlatform) Parse(u *url.URL) (MediaDescriptor, error) {
	m := qobuzPath.FindStringSubmatch(u.Path)
	if m == nil {
		return MediaDescriptor{}, invalidReference(p.Name(), u)
	}
	kind := MediaType(m[1])
	if m[1] == "interpreter" {
		kind = MediaArtist
	}
	return MediaDescriptor{Platform: p.Name(), Type: kind, ID: m[2], URL: u.String()}, nil
}

type qobuzItem struct {
	ID        flexID `json:"id"`
	Title     string `json:"title"`
	Name      string `json:"name"`
	Duration  int    `json:"duration"`
	Performer named  `json:"performer"`
	Artist    named  `json:"artist"`
	Owner     named  `json:"owner"`
	Album     titled `json:"album"`
}

type qobuzPage struct {
	Items []qobuzItem `json:"items"`
}

type qobuzSearchResponse struct {
	Tracks    qobuzPage `json:"tracks"`
	Albums    qobuzPage `json:"albums"`
	Artists   qobuzPage `json:"artists"`
	Playlists qobuzPage `json:"playlists"`
}

func (p *qobuzPlatform) Search(ctx context.Context, query string, mediaType MediaType, limit int) ([]SearchResult, error) {
	if p.creds.AppID == "" {
		return nil, NewDownloadError(ErrorAuthenticationFailed, "qobuz search requires an app id")
	}

	endpoint := p.catalog.base(p.Name(), "https://www.qobuz.com/api.json/0.2") + "/" + string(mediaType) + "/search"
	params := url.Values{"query": {query}, "limit": {strconv.Itoa(limit)}, "app_id": {p.creds.AppID}}
	header := http.Header{"X-App-Id": {p.creds.AppID}}

	var resp qobuzSearchResponse
	if err := p.catalog.getJSON(ctx, endpoint, params, header, &resp); err != nil {
		return nil, err
	}

	var page qobuzPage
	switch mediaType {
	case MediaTrack:
		page = resp.Tracks
	case MediaAlbum:
		page = resp.Albums
	case MediaArtist:
		page = resp.Artists
	case MediaPlaylist:
		page = resp.Playlists
	}

	results := make([]SearchResult, 0, len(page.Items))
	for _, item := range page.Items {
		r := SearchResult{Platform: p.Name(), Type: mediaType, ID: string(item.ID), Title: item.Title, Album: item.Album.Title}
		switch mediaType {
		case MediaTrack:
			r.Artist = item.Performer.Name
			r.Duration = time.Duration(item.Duration) * time.Second
		case MediaAlbum:
			r.Artist = item.Artist.Name
		case MediaArtist:
			r.Title = item.Name
		case MediaPlaylist:
			r.Title = item.Name
			r.Artist = item.Owner.Name
		}
		r.URL = fmt.Sprintf("https://open.qobuz.com/%s/%s", mediaType, item.ID)
		results = append(results, r)
	}
	return limitResults(results, limit), nil
}

// Tidal

var tidalPath = regexp.MustCompile(`^/(?:browse/)?(track|album|playlist|artist|video)/([0-9A-Za-z-]+)/?$`)

type tidalPlatform struct {
	creds   config.PlatformCredentials
	catalog *Catalog
}

func (p *tidalPlatform) Name() string  { return "tidal" }
func (p *tidalPlatform) Emoji() string { return "⚫" }

func (p *tidalPlatform) Hosts() []string {
	return []string{"tidal.com", "listen.tidal.com"}
}

func (p *tidalPlatform) MaxQuality() Quality { return Quality(p.creds.MaxQuality) }

func (p *tidalPlatform) SearchTypes() []MediaType {
	return []MediaType{MediaTrack, MediaAlbum, MediaArtist, MediaPlaylist}
}

func (p *tidalPlatform) Parse(u *url.URL) (MediaDescriptor, error) {
	m := tidalPath.FindStringSubmatch(u.Path)
	if m == nil || m[1] == "video" {
		return MediaDescriptor{}, invalidReference(p.Name(), u)
	}
	return MediaDescriptor{Platform: p.Name(), Type: MediaType(m[1]), ID: m[2], URL: u.String()}, nil
}

type tidalItem struct {
	ID       flexID  `json:"id"`
	UUID     string  `json:"uuid"`
	Title    string  `json:"title"`
	Name     string  `json:"name"`
	Duration int     `json:"duration"`
	Artists  []named `json:"artists"`
	Creator  named   `json:"creator"`
	Album    titled  `json:"album"`
}

type tidalSearchResponse struct {
	Items []tidalItem `json:"items"`
}

func (p *tidalPlatform) Search(ctx context.Context, query string, mediaType MediaType, limit int) ([]SearchResult, error) {
	country := p.creds.CountryCode
	if country == "" {
		country = "US"
	}
	endpoint := p.catalog.base(p.Name(), "https://api.tidal.com/v1") + "/search/" + string(mediaType) + "s"
	params := url.Values{"query": {query}, "limit": {strconv.Itoa(limit)}, "countryCode": {country}}
	header := http.Header{"Authorization": {"Bearer " + p.creds.AccessToken}}

	var resp tidalSearchResponse
	if err := p.catalog.getJSON(ctx, endpoint, params, header, &resp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		r := SearchResult{Platform: p.Name(), Type: mediaType, ID: string(item.ID), Title: item.Title, Album: item.Album.Title}
		if len(item.Artists) > 0 {
			r.Artist = item.Artists[0].Name
		}
		switch mediaType {
		case MediaTrack:
			r.Duration = time.Duration(item.Duration) * time.Second
		case MediaArtist:
			r.Title = item.Name
		case MediaPlaylist:
			r.ID = item.UUID
			r.Artist = item.Creator.Name
		}
		r.URL = fmt.Sprintf("https://tidal.com/browse/%s/%s", mediaType, r.ID)
		results = append(results, r)
	}
	return limitResults(results, limit), nil
}

// Deezer

var deezerPath = regexp.MustCompile(`^/(?:[a-z]{2}(?:-[a-z]{2})?/)?(track|album|playlist|artist)/(\d+)/?$`)

type deezerPlatform struct {
	creds   config.PlatformCredentials
	catalog *Catalog
}

func (p *deezerPlatform) Name() string  { return "deezer" }
func (p *deezerPlatform) Emoji() string { return "🟣" }

func (p *deezerPlatform) Hosts() []string {
	return []string{"deezer.com", "deezer.page.link", "link.deezer.com", "dzr.page.link"}
}

func (p *deezerPlatform) MaxQuality() Quality { return Quality(p.creds.MaxQuality) }

func (p *deezerPlatform) SearchTypes() []MediaType {
	return []MediaType{MediaTrack, MediaAlbum, MediaArtist, MediaPlaylist}
}

func (p *deezerPlatform) Parse(u *url.URL) (MediaDescriptor, error) {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host != "deezer.com" {
		id := strings.Trim(u.Path, "/")
		if id == "" {
			return MediaDescriptor{}, invalidReference(p.Name(), u)
		}
		return MediaDescriptor{Platform: p.Name(), Type: MediaLink, ID: id, URL: u.String()}, nil
	}
	m := deezerPath.FindStringSubmatch(u.Path)
	if m == nil {
		return MediaDescriptor{}, invalidReference(p.Name(), u)
	}
	return MediaDescriptor{Platform: p.Name(), Type: MediaType(m[1]), ID: m[2], URL: u.String()}, nil
}

type deezerItem struct {
	ID       flexID `json:"id"`
	Title    string `json:"title"`
	Name     string `json:"name"`
	Duration int    `json:"duration"`
	Link     string `json:"link"`
	Artist   named  `json:"artist"`
	User     named  `json:"user"`
	Album    titled `json:"album"`
}

type deezerSearchResponse struct {
	Data  []deezerItem `json:"data"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (p *deezerPlatform) Search(ctx context.Context, query string, mediaType MediaType, limit int) ([]SearchResult, error) {
	endpoint := p.catalog.base(p.Name(), "https://api.deezer.com") + "/search/" + string(mediaType)
	params := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}

	var resp deezerSearchResponse
	if err := p.catalog.getJSON(ctx, endpoint, params, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, NewDownloadError(ErrorUnknown, fmt.Sprintf("deezer search failed: %s", resp.Error.Message))
	}

	results := make([]SearchResult, 0, len(resp.Data))
	for _, item := range resp.Data {
		r := SearchResult{Platform: p.Name(), Type: mediaType, ID: string(item.ID), Title: item.Title, Artist: item.Artist.Name, Album: item.Album.Title, URL: item.Link}
		switch mediaType {
		case MediaTrack:
			r.Duration = time.Duration(item.Duration) * time.Second
		case MediaArtist:
			r.Title = item.Name
			r.Artist = ""
		case MediaPlaylist:
			r.Artist = item.User.Name
		}
		if r.URL == "" {
			r.URL = fmt.Sprintf("https://www.deezer.com/%s/%s", mediaType, item.ID)
		}
		results = append(results, r)
	}
	return limitResults(results, limit), nil
}

// SoundCloud

type soundcloudPlatform struct {
	creds   config.PlatformCredentials
	catalog *Catalog
}

func (p *soundcloudPlatform) Name() string  { return "soundcloud" }
func (p *soundcloudPlatform) Emoji() string { return "🟠" }

func (p *soundcloudPlatform) Hosts() []string {
	return []string{"soundcloud.com", "m.soundcloud.com", "on.soundcloud.com"}
}

func (p *soundcloudPlatform) MaxQuality() Quality { return Quality(p.creds.MaxQuality) }

func (p *soundcloudPlatform) SearchTypes() []MediaType {
	return []MediaType{MediaTrack}
}

var soundcloudReserved = map[string]bool{
	"discover": true, "search": true, "stream": true, "upload": true, "you": true, "charts": true,
}

func (p *soundcloudPlatform) Parse(u *url.URL) (MediaDescriptor, error) {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" || soundcloudReserved[segments[0]] {
		return MediaDescriptor{}, invalidReference(p.Name(), u)
	}

	if strings.HasPrefix(strings.ToLower(u.Hostname()), "on.") {
		return MediaDescriptor{Platform: p.Name(), Type: MediaLink, ID: segments[0], URL: u.String()}, nil
	}

	id := strings.Join(segments, "/")
	switch {
	case len(segments) == 1:
		return MediaDescriptor{Platform: p.Name(), Type: MediaArtist, ID: id, URL: u.String()}, nil
	case len(segments) == 2 && segments[1] != "sets":
		return MediaDescriptor{Platform: p.Name(), Type: MediaTrack, ID: id, URL: u.String()}, nil
	case len(segments) == 3 && segments[1] == "sets":
		return MediaDescriptor{Platform: p.Name(), Type: MediaPlaylist, ID: id, URL: u.String()}, nil
	}
	return MediaDescriptor{}, invalidReference(p.Name(), u)
}

type soundcloudSearchResponse struct {
	Collection []struct {
		ID           flexID `json:"id"`
		Title        string `json:"title"`
		Duration     int64  `json:"duration"` // milliseconds
		PermalinkURL string `json:"permalink_url"`
		User         struct {
			Username string `json:"username"`
		} `json:"user"`
	} `json:"collection"`
}

func (p *soundcloudPlatform) Search(ctx context.Context, query string, mediaType MediaType, limit int) ([]SearchResult, error) {
	if mediaType != MediaTrack {
		return nil, nil
	}
	if p.creds.ClientID == "" {
		return nil, NewDownloadError(ErrorAuthenticationFailed, "soundcloud search requires a client id")
	}

	endpoint := p.catalog.base(p.Name(), "https://api-v2.soundcloud.com") + "/search/tracks"
	params := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}, "client_id": {p.creds.ClientID}}
	if p.creds.AppVersion != "" {
		params.Set("app_version", p.creds.AppVersion)
	}

	var resp soundcloudSearchResponse
	if err := p.catalog.getJSON(ctx, endpoint, params, nil, &resp); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(resp.Collection))
	for _, item := range resp.Collection {
		results = append(results, SearchResult{
			Platform: p.Name(),
			Type:     MediaTrack,
			ID:       string(item.ID),
			Title:    item.Title,
			Artist:   item.User.Username,
			Duration: time.Duration(item.Duration) * time.Millisecond,
			URL:      item.PermalinkURL,
		})
	}
	return limitResults(results, limit), nil
}

// Last.fm

var lastfmPlaylistPath = regexp.MustCompile(`^/user/([^/]+)/playlists/(\d+)/?$`)

// lastfmPlatform hands Last.fm playlists to streamrip, which looks every
// entry up on the configured source platform. It has no catalogue of its own.
type lastfmPlatform struct {
	creds  config.PlatformCredentials
	source Platform
}

func (p *lastfmPlatform) Name() string  { return config.LastFM }
func (p *lastfmPlatform) Emoji() string { return "🔴" }

func (p *lastfmPlatform) Hosts() []string {
	return []string{"last.fm", "m.last.fm"}
}

// MaxQuality is the source platform's limit.
func (p *lastfmPlatform) MaxQuality() Quality {
	if p.source == nil {
		return 0
	}
	return p.source.MaxQuality()
}

func (p *lastfmPlatform) SearchTypes() []MediaType { return nil }

func (p *lastfmPlatform) Parse(u *url.URL) (MediaDescriptor, error) {
	m := lastfmPlaylistPath.FindStringSubmatch(u.Path)
	if m == nil {
		return MediaDescriptor{}, invalidReference(p.Name(), u)
	}
	return MediaDescriptor{Platform: p.Name(), Type: MediaPlaylist, ID: m[1] + "/" + m[2], URL: u.String()}, nil
}

func (p *lastfmPlatform) Search(ctx context.Context, query string, mediaType MediaType, limit int) ([]SearchResult, error) {
	return nil, nil
}

func newPlatforms(creds map[string]config.PlatformCredentials, catalog *Catalog) []Platform {
	platforms := []Platform{
		&qobuzPlatform{creds: creds["qobuz"], catalog: catalog},
		&tidalPlatform{creds: creds["tidal"], catalog: catalog},
		&deezerPlatform{creds: creds["deezer"], catalog: catalog},
		&soundcloudPlatform{creds: creds["soundcloud"], catalog: catalog},
	}
	lastfm := &lastfmPlatform{creds: creds[config.LastFM]}
	for _, p := range platforms {
		if p.Name() == lastfm.creds.Source {
			lastfm.source = p
		}
	}
	return append(platforms, lastfm)
}
