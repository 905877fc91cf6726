package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"go-streamrip-bot/downloader"
	"go-streamrip-bot/queue"
)

// File is one item handed to the uploader.
type File struct {
	Path    string
	Name    string
	Caption string
	// Audio is set for whole audio files so they show up as playable tracks.
	Audio *downloader.AudioInfo
}

// Uploader sends a file to a chat. progress receives cumulative bytes sent
// and must be called from one goroutine at a time.
type Uploader interface {
	Upload(ctx context.Context, chatID int64, replyTo int, file File, progress func(sent int64)) error
}

// Config holds delivery settings.
type Config struct {
	MirrorDir string
	SplitSize int64
}

// Deliverer implements leech and mirror delivery.
type Deliverer struct {
	uploader Uploader
	cfg      Config
	logger   *zap.SugaredLogger
}

// New creates a Deliverer.
func New(uploader Uploader, cfg Config, logger *zap.SugaredLogger) *Deliverer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Deliverer{uploader: uploader, cfg: cfg, logger: logger}
}

// Deliver sends files according to the job's mode. A failure after some
// items succeeded returns a *DeliveryError describing the partial result.
func (d *Deliverer) Deliver(ctx context.Context, job queue.Snapshot, files []string, progress downloader.ProgressFunc) (string, error) {
	if len(files) == 0 {
		return "", &DeliveryError{Verb: "delivered", Unit: "files", Cause: fmt.Errorf("nothing to deliver")}
	}
	if progress == nil {
		progress = func(downloader.Progress) {}
	}

	switch job.Mode {
	case queue.ModeMirror:
		return d.mirror(ctx, job, files, progress)
	default:
		return d.leech(ctx, job, files, progress)
	}
}

// tracker turns byte counts into Uploading progress updates.
type tracker struct {
	bar      *progressbar.ProgressBar
	progress downloader.ProgressFunc
	total    int
	last     time.Time
}

func newTracker(totalBytes int64, totalItems int, progress downloader.ProgressFunc) *tracker {
	return &tracker{
		bar:      progressbar.DefaultBytesSilent(totalBytes, "delivery"),
		progress: progress,
		total:    totalItems,
	}
}

// add records n more bytes. Updates are throttled to one per second except
// for item boundaries.
func (t *tracker) add(n int64, index int, name string, force bool) {
	_ = t.bar.Add64(n)
	if !force && time.Since(t.last) < time.Second {
		return
	}
	t.last = time.Now()

	state := t.bar.State()
	fraction := 0.0
	if state.Max > 0 {
		fraction = float64(state.CurrentNum) / float64(state.Max)
	}
	t.progress(downloader.Progress{
		Phase:          downloader.PhaseUploading,
		Fraction:       fraction,
		BytesProcessed: state.CurrentNum,
		TotalBytes:     state.Max,
		Speed:          int64(state.KBsPerSecond * 1024),
		ETA:            time.Duration(state.SecondsLeft * float64(time.Second)),
		CurrentTrack:   name,
		TrackIndex:     index,
		TrackCount:     t.total,
	})
}

func (t *tracker) finish() {
	_ = t.bar.Finish()
}

func (d *Deliverer) leech(ctx context.Context, job queue.Snapshot, files []string, progress downloader.ProgressFunc) (string, error) {
	var items []File
	var totalBytes int64

	for _, path := range files {
		parts, err := splitFile(path, d.cfg.SplitSize)
		if err != nil {
			return "", &DeliveryError{Verb: "uploaded", Unit: "parts", Failed: filepath.Base(path), Cause: fmt.Errorf("split failed: %w", err)}
		}

		name := filepath.Base(path)
		if len(parts) == 1 {
			info := downloader.ProbeAudio(path)
			items = append(items, File{Path: path, Name: name, Caption: name, Audio: &info})
			totalBytes += info.Size
			continue
		}

		d.logger.Infof("Job %s: split %s into %d parts", job.ID, name, len(parts))
		for i, part := range parts {
			partName := filepath.Base(part)
			items = append(items, File{
				Path:    part,
				Name:    partName,
				Caption: fmt.Sprintf("%s (part %d/%d)", name, i+1, len(parts)),
			})
			if info, err := os.Stat(part); err == nil {
				totalBytes += info.Size()
			}
		}
	}

	bar := newTracker(totalBytes, len(items), progress)
	defer bar.finish()

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return "", &DeliveryError{Verb: "uploaded", Unit: "parts", Done: i, Total: len(items), Cause: err}
		}

		var sent int64
		err := d.uploader.Upload(ctx, job.ChatID, job.MessageID, item, func(total int64) {
			if total > sent {
				bar.add(total-sent, i+1, item.Name, false)
				sent = total
			}
		})
		if err != nil {
			d.logger.Errorf("Job %s: upload of %s failed after %d/%d parts: %v", job.ID, item.Name, i, len(items), err)
			return "", &DeliveryError{Verb: "uploaded", Unit: "parts", Done: i, Total: len(items), Failed: item.Name, Cause: err}
		}
		bar.add(max(fileSize(item.Path)-sent, 0), i+1, item.Name, true)
	}

	d.logger.Infof("Job %s: uploaded %d files (%s)", job.ID, len(items), humanize.IBytes(uint64(totalBytes)))
	return fmt.Sprintf("Uploaded %d files (%s)", len(items), humanize.IBytes(uint64(totalBytes))), nil
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// folderName picks the directory name under MIRROR_DIR for a job.
func folderName(job queue.Snapshot, root string) string {
	name := job.Name
	if name == "" {
		if base := filepath.Base(root); base != "." && base != string(filepath.Separator) && !strings.HasPrefix(base, "streamrip_") {
			name = base
		}
	}
	if name == "" && job.Descriptor.ID != "" {
		name = job.Descriptor.String()
	}
	if name == "" {
		name = "streamrip_" + job.ID
	}
	return sanitize(name)
}

func sanitize(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 32 {
			return -1
		}
		return r
	}, name)
	cleaned = strings.Trim(strings.TrimSpace(cleaned), ".")
	if cleaned == "" {
		return "untitled"
	}
	return cleaned
}

// commonDir returns the deepest directory containing every file.
func commonDir(files []string) string {
	dir := filepath.Dir(files[0])
	for _, f := range files[1:] {
		for !strings.HasPrefix(filepath.Dir(f)+string(filepath.Separator), dir+string(filepath.Separator)) {
			parent := filepath.Dir(dir)
			if parent == dir {
				return dir
			}
			dir = parent
		}
	}
	return dir
}
