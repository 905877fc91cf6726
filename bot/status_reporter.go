package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"go-streamrip-bot/queue"
)

// progressBarLength is the number of cells in a status progress bar.
const progressBarLength = 20

// statusEntry is the reporter's view of one job's status message.
type statusEntry struct {
	job       queue.Snapshot
	messageID int
	dirty     bool
	retired   bool
	lastText  string
}

// StatusReporter keeps one status message per job up to date. Tracker events
// only mark entries dirty; Run flushes them at most once per interval.
type StatusReporter struct {
	messenger *Messenger
	interval  time.Duration
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*statusEntry
	// retired remembers recently finished jobs so late events are ignored.
	retired map[string]time.Time
	wake    chan struct{}
}

// retiredMemory is how long a finished job's id is remembered.
const retiredMemory = 10 * time.Minute

// NewStatusReporter creates a reporter. Attach it with tracker.Subscribe(r.Observe).
func NewStatusReporter(messenger *Messenger, interval time.Duration, logger *zap.SugaredLogger) *StatusReporter {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusReporter{
		messenger: messenger,
		interval:  interval,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[string]*statusEntry),
		retired:   make(map[string]time.Time),
		wake:      make(chan struct{}, 1),
	}
}

// Observe records a tracker event. It never blocks.
func (r *StatusReporter) Observe(ev queue.Event) {
	r.mu.Lock()
	if _, gone := r.retired[ev.Job.ID]; gone {
		r.mu.Unlock()
		return
	}
	entry, ok := r.entries[ev.Job.ID]
	if !ok {
		if ev.Kind == queue.EventRetired {
			// Nothing was ever shown for this job.
			r.mu.Unlock()
			return
		}
		entry = &statusEntry{}
		r.entries[ev.Job.ID] = entry
	} else if stale(entry.job, ev.Job) {
		r.mu.Unlock()
		return
	}
	entry.job = ev.Job
	entry.dirty = true
	if ev.Kind == queue.EventRetired {
		entry.retired = true
	}
	r.mu.Unlock()

	if ev.Kind != queue.EventProgress {
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
}

// Run flushes pending updates until ctx is done.
func (r *StatusReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-r.wake:
		}
		r.Flush(ctx)
	}
}

// Flush sends or edits every dirty status message.
func (r *StatusReporter) Flush(ctx context.Context) {
	r.mu.Lock()
	pending := make(map[string]statusEntry)
	for id, entry := range r.entries {
		if entry.dirty {
			pending[id] = *entry
			entry.dirty = false
		}
	}
	r.mu.Unlock()

	for id, entry := range pending {
		text := formatJobStatus(entry.job, r.now())
		messageID, err := r.publish(ctx, entry, text)
		if err != nil {
			r.logger.Warnf("Failed to update status for job %s: %v", id, err)
		}

		r.mu.Lock()
		current, ok := r.entries[id]
		if ok {
			if messageID != 0 {
				current.messageID = messageID
			}
			if err == nil {
				current.lastText = text
			}
			if entry.retired {
				delete(r.entries, id)
				r.retired[id] = r.now()
			}
		}
		r.mu.Unlock()
	}

	r.mu.Lock()
	for id, at := range r.retired {
		if r.now().Sub(at) > retiredMemory {
			delete(r.retired, id)
		}
	}
	r.mu.Unlock()
}

// stale reports whether next is older than the snapshot already held.
// Progress is published outside the tracker lock and can arrive after a
// newer transition.
func stale(held, next queue.Snapshot) bool {
	if held.State.IsTerminal() && !next.State.IsTerminal() {
		return true
	}
	return next.UpdatedAt.Before(held.UpdatedAt)
}

func (r *StatusReporter) publish(ctx context.Context, entry statusEntry, text string) (int, error) {
	if text == entry.lastText {
		return entry.messageID, nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if entry.messageID == 0 {
		return r.messenger.Send(sendCtx, entry.job.ChatID, entry.job.MessageID, text, nil)
	}
	return entry.messageID, r.messenger.Edit(sendCtx, entry.job.ChatID, entry.messageID, text, nil)
}

// Pending returns how many jobs still have a status message being tracked.
func (r *StatusReporter) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// formatJobStatus renders the full status message for one job.
func formatJobStatus(snap queue.Snapshot, now time.Time) string {
	var builder strings.Builder

	fmt.Fprintf(&builder, "🎵 **%s**\n", escapeMarkdown(snap.DisplayName()))
	fmt.Fprintf(&builder, "🆔 `%s` • %s • Q%d\n\n", snap.ID, snap.Mode, int(snap.RequestedQuality))

	switch snap.State {
	case queue.StateDone:
		builder.WriteString("✅ **Completed**\n")
		fmt.Fprintf(&builder, "📁 %d files • %s\n", snap.Files, humanize.IBytes(uint64(snap.Bytes)))
		fmt.Fprintf(&builder, "🎚 %s\n", snap.EffectiveQuality.Label())
	case queue.StateFailed:
		fmt.Fprintf(&builder, "❌ **Failed**: %s\n", escapeMarkdown(snap.Reason))
	case queue.StateCancelled:
		builder.WriteString("🚫 **Cancelled**\n")
	default:
		fmt.Fprintf(&builder, "%s %s\n", stateEmoji(snap.State), stateDescription(snap))
		writeProgress(&builder, snap)
	}

	if snap.Note != "" {
		fmt.Fprintf(&builder, "ℹ️ %s\n", escapeMarkdown(snap.Note))
	}

	fmt.Fprintf(&builder, "\n⏱️ Elapsed: %s", snap.Elapsed(now).Round(time.Second))
	return builder.String()
}

// formatJobLine renders one compact line for job lists.
func formatJobLine(snap queue.Snapshot, now time.Time) string {
	line := fmt.Sprintf("%s `%s` **%s** • %s", stateEmoji(snap.State), snap.ID,
		escapeMarkdown(snap.DisplayName()), snap.State)
	if snap.State.IsActive() && snap.Progress.Fraction > 0 {
		line += fmt.Sprintf(" %.0f%%", snap.Progress.Fraction*100)
	}
	return line + fmt.Sprintf(" • %s", snap.Elapsed(now).Round(time.Second))
}

func writeProgress(builder *strings.Builder, snap queue.Snapshot) {
	p := snap.Progress
	if p.TrackCount > 1 {
		fmt.Fprintf(builder, "💿 Track %d/%d", p.TrackIndex, p.TrackCount)
		if p.CurrentTrack != "" {
			fmt.Fprintf(builder, ": %s", escapeMarkdown(p.CurrentTrack))
		}
		builder.WriteString("\n")
	} else if p.CurrentTrack != "" {
		fmt.Fprintf(builder, "💿 %s\n", escapeMarkdown(p.CurrentTrack))
	}

	if !snap.State.IsActive() {
		return
	}

	fmt.Fprintf(builder, "📊 %s %.1f%%\n", createProgressBar(p.Fraction*100, progressBarLength), p.Fraction*100)
	if p.TotalBytes > 0 {
		fmt.Fprintf(builder, "📦 %s / %s\n", humanize.IBytes(uint64(p.BytesProcessed)), humanize.IBytes(uint64(p.TotalBytes)))
	}
	if p.Speed > 0 {
		fmt.Fprintf(builder, "⚡ %s/s", humanize.IBytes(uint64(p.Speed)))
		if p.ETA > 0 {
			fmt.Fprintf(builder, " • ETA: %s", p.ETA.Round(time.Second))
		}
		builder.WriteString("\n")
	}
}

// createProgressBar creates a visual progress bar
func createProgressBar(percentage float64, length int) string {
	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}

	filled := int((percentage / 100.0) * float64(length))
	empty := length - filled

	return strings.Repeat("█", filled) + strings.Repeat("░", empty)
}

// stateEmoji returns an emoji for the given state
func stateEmoji(state queue.State) string {
	switch state {
	case queue.StateQueued:
		return "⏳"
	case queue.StateDownloading:
		return "⬇️"
	case queue.StateConverting:
		return "🔄"
	case queue.StateUploading:
		return "📤"
	case queue.StateDone:
		return "✅"
	case queue.StateFailed:
		return "❌"
	case queue.StateCancelled:
		return "🚫"
	default:
		return "⏳"
	}
}

// stateDescription returns a description for a non-terminal state
func stateDescription(snap queue.Snapshot) string {
	switch snap.State {
	case queue.StateQueued:
		return "Waiting for a free download slot..."
	case queue.StateDownloading:
		return "Downloading with streamrip..."
	case queue.StateConverting:
		return fmt.Sprintf("Converting to %s...", snap.Codec)
	case queue.StateUploading:
		if snap.Mode == queue.ModeMirror {
			return "Copying to mirror..."
		}
		return "Uploading to Telegram..."
	default:
		return "Processing..."
	}
}
