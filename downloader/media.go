package downloader

import (
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Sorrow446/go-mp4tag"
	"github.com/abema/go-mp4"
)

// AudioExtensions lists the file types streamrip produces.
var AudioExtensions = []string{".flac", ".mp3", ".m4a", ".ogg", ".opus"}

// IsAudioFile reports whether path has one of AudioExtensions.
func IsAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range AudioExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// ListAudioFiles returns every audio file below dir, sorted by path.
func ListAudioFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsAudioFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// AudioInfo is what Telegram needs to show a file as a playable track.
type AudioInfo struct {
	Title     string
	Performer string
	Duration  time.Duration
	Size      int64
}

// ProbeAudio reads what it can about path. Only m4a files are parsed; for
// other formats the title falls back to the file name.
func ProbeAudio(path string) AudioInfo {
	info := AudioInfo{
		Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}
	if stat, err := os.Stat(path); err == nil {
		info.Size = stat.Size()
	}

	if strings.ToLower(filepath.Ext(path)) != ".m4a" {
		splitTitle(&info)
		return info
	}

	parsed := false
	if f, err := os.Open(path); err == nil {
		if probe, err := mp4.Probe(f); err == nil && probe.Timescale > 0 {
			info.Duration = time.Duration(float64(probe.Duration) / float64(probe.Timescale) * float64(time.Second))
			parsed = true
		}
		f.Close()
	}

	if !parsed {
		splitTitle(&info)
		return info
	}

	if tagged, err := mp4tag.Open(path); err == nil {
		if tags, err := tagged.Read(); err == nil && tags != nil {
			if tags.Title != "" {
				info.Title = tags.Title
			}
			info.Performer = tags.Artist
		}
		tagged.Close()
	}

	if info.Performer == "" {
		splitTitle(&info)
	}
	return info
}

var trackNumberPrefix = regexp.MustCompile(`^\d+\.\s*`)

// splitTitle applies streamrip's default "{tracknumber}. {artist} - {title}" file naming.
func splitTitle(info *AudioInfo) {
	if info.Performer != "" {
		return
	}
	info.Title = trackNumberPrefix.ReplaceAllString(info.Title, "")
	if artist, title, ok := strings.Cut(info.Title, " - "); ok {
		info.Performer = strings.TrimSpace(artist)
		info.Title = strings.TrimSpace(title)
	}
}
