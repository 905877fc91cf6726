package downloader

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Phase represents the current phase of a download
type Phase int

const (
	PhaseResolving Phase = iota
	PhaseDownloading
	PhaseConverting
	PhaseUploading
	PhaseComplete
	PhaseError
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseResolving:
		return "resolving"
	case PhaseDownloading:
		return "downloading"
	case PhaseConverting:
		return "converting"
	case PhaseUploading:
		return "uploading"
	case PhaseComplete:
		return "complete"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// Progress represents the current progress of an operation
type Progress struct {
	Phase          Phase         `json:"phase"`
	Fraction       float64       `json:"fraction"` // 0..1 across the whole job
	BytesProcessed int64         `json:"bytes_processed"`
	TotalBytes     int64         `json:"total_bytes"`
	Speed          int64         `json:"speed"` // bytes per second
	ETA            time.Duration `json:"eta"`
	CurrentTrack   string        `json:"current_track"`
	TrackIndex     int           `json:"track_index"`
	TrackCount     int           `json:"track_count"`
}

// ProgressFunc receives progress from the goroutine doing the work.
// Implementations must not block.
type ProgressFunc func(Progress)

// MediaType is the kind of object a reference points at.
type MediaType string

const (
	MediaTrack    MediaType = "track"
	MediaAlbum    MediaType = "album"
	MediaPlaylist MediaType = "playlist"
	MediaArtist   MediaType = "artist"
	MediaLabel    MediaType = "label"
	// MediaLink is a short link that only streamrip can expand.
	MediaLink MediaType = "link"
)

// MediaDescriptor identifies something downloadable on one platform.
type MediaDescriptor struct {
	Platform string    `json:"platform"`
	Type     MediaType `json:"type"`
	ID       string    `json:"id"`
	URL      string    `json:"url,omitempty"` // empty when resolved from a platform:type:id reference
}

// String returns the platform:type:id form used by search results.
func (d MediaDescriptor) String() string {
	return fmt.Sprintf("%s:%s:%s", d.Platform, d.Type, d.ID)
}

// SearchResult is one catalogue hit.
type SearchResult struct {
	Platform string        `json:"platform"`
	Type     MediaType     `json:"type"`
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Artist   string        `json:"artist"`
	Album    string        `json:"album,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	URL      string        `json:"url,omitempty"`
}

// Descriptor returns the reference streamrip needs to fetch the result.
func (r SearchResult) Descriptor() MediaDescriptor {
	return MediaDescriptor{Platform: r.Platform, Type: r.Type, ID: r.ID, URL: r.URL}
}

// Platform is one supported streaming service.
type Platform interface {
	// Name returns the lowercase platform name used by streamrip.
	Name() string

	// Emoji marks the platform in search menus.
	Emoji() string

	// Hosts lists the hostnames whose URLs belong to this platform.
	Hosts() []string

	// Parse extracts a descriptor from a URL on one of Hosts.
	// It returns an InvalidReference error when the path is not recognised.
	Parse(u *url.URL) (MediaDescriptor, error)

	// MaxQuality is the highest quality the configured account may fetch.
	MaxQuality() Quality

	// SearchTypes lists the media types the catalogue can be searched for.
	SearchTypes() []MediaType

	// Search queries the platform catalogue.
	Search(ctx context.Context, query string, mediaType MediaType, limit int) ([]SearchResult, error)
}

// Runner executes the streamrip CLI. Each output line is passed to onLine
// as it is produced.
type Runner interface {
	Run(ctx context.Context, dir string, args []string, onLine func(line string)) error
}
