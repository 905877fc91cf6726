package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"go-streamrip-bot/queue"
)

// recentHistoryLimit is how many finished jobs /status lists.
const recentHistoryLimit = 5

// HistoryReader is the part of queue.HistoryStore /status uses.
type HistoryReader interface {
	Recent(ctx context.Context, ownerID int64, limit int) ([]queue.HistoryRecord, error)
}

// StatusHandler implements CommandHandler for the /status command
type StatusHandler struct {
	tracker    *queue.Tracker
	history    HistoryReader
	isOperator func(int64) bool
	limit      int
	messenger  *Messenger
	logger     *zap.SugaredLogger
	now        func() time.Time
}

// NewStatusHandler creates a new StatusHandler. history may be nil when the
// database is disabled; limit caps the jobs listed, 0 lists all.
func NewStatusHandler(tracker *queue.Tracker, history HistoryReader, isOperator func(int64) bool, limit int, messenger *Messenger, logger *zap.SugaredLogger) *StatusHandler {
	return &StatusHandler{
		tracker:    tracker,
		history:    history,
		isOperator: isOperator,
		limit:      limit,
		messenger:  messenger,
		logger:     logger,
		now:        time.Now,
	}
}

// Command returns the command string this handler processes
func (h *StatusHandler) Command() string {
	return "status"
}

// Handle shows the sender's jobs, or every job for `/status all` from an operator.
func (h *StatusHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	startTime := time.Now()

	h.logger.Infof("Processing /status command for user %d in chat %d", cmdCtx.UserID, cmdCtx.ChatID)

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var message string
	switch strings.ToLower(strings.TrimSpace(cmdCtx.Args)) {
	case "":
		message = h.createUserStatusMessage(timeoutCtx, cmdCtx.UserID)
	case "all":
		if !h.isOperator(cmdCtx.UserID) {
			return userErrorf("Only operators can see every task.")
		}
		message = h.createAllStatusMessage()
	default:
		return userErrorf("Usage: /status or /status all")
	}

	if _, err := h.messenger.Send(timeoutCtx, cmdCtx.ChatID, cmdCtx.MessageID, message, nil); err != nil {
		return fmt.Errorf("failed to send status: %w", err)
	}

	h.logger.Infof("Successfully processed /status command for user %d (took %v)",
		cmdCtx.UserID, time.Since(startTime))
	return nil
}

// createUserStatusMessage lists the user's tracked jobs and recent history.
func (h *StatusHandler) createUserStatusMessage(ctx context.Context, userID int64) string {
	now := h.now()
	jobs := h.tracker.Status(userID)

	var b strings.Builder
	b.WriteString("📊 **Your Tasks**\n\n")

	if len(jobs) == 0 {
		b.WriteString("📋 **Queue:** Empty\n")
	}

	shown := jobs
	if h.limit > 0 && len(shown) > h.limit {
		shown = shown[:h.limit]
	}
	for i, snap := range shown {
		if i > 0 {
			b.WriteString("\n\n")
		}
		// Active jobs get the full status view, queued ones a single line.
		if snap.State.IsActive() {
			b.WriteString(formatJobStatus(snap, now))
		} else {
			b.WriteString(formatJobLine(snap, now))
		}
	}
	if hidden := len(jobs) - len(shown); hidden > 0 {
		fmt.Fprintf(&b, "\n\n…and %d more", hidden)
	}

	if h.history != nil {
		records, err := h.history.Recent(ctx, userID, recentHistoryLimit)
		if err != nil {
			h.logger.Warnf("Failed to read history for user %d: %v", userID, err)
		} else if len(records) > 0 {
			b.WriteString("\n\n🗂 **Recently finished:**\n")
			for _, rec := range records {
				fmt.Fprintf(&b, "• `%s` %s **%s** (%s ago)\n", rec.JobID, rec.State,
					escapeMarkdown(historyName(rec)), now.Sub(rec.FinishedAt).Round(time.Minute))
			}
		}
	}

	b.WriteString("\n\n💡 Use `/cancel <id>` to stop a task")
	return b.String()
}

// createAllStatusMessage renders every tracked job as a table.
func (h *StatusHandler) createAllStatusMessage() string {
	now := h.now()
	jobs := h.tracker.All()
	if len(jobs) == 0 {
		return "📊 **All Tasks**\n\n📋 **Queue:** Empty"
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"ID", "Owner", "State", "%", "Elapsed"})

	shown := jobs
	if h.limit > 0 && len(shown) > h.limit {
		shown = shown[:h.limit]
	}
	for _, snap := range shown {
		percent := "-"
		if snap.State.IsActive() {
			percent = strconv.Itoa(int(snap.Progress.Fraction * 100))
		}
		tw.AppendRow(table.Row{snap.ID, snap.OwnerID, snap.State, percent, snap.Elapsed(now).Round(time.Second)})
	}
	tw.AppendFooter(table.Row{"", "", "Total", len(jobs), ""})

	// Backticks would end the pre block.
	rendered := strings.ReplaceAll(tw.Render(), "`", "'")
	return fmt.Sprintf("📊 **All Tasks**\n\n```\n%s\n```", rendered)
}

func historyName(rec queue.HistoryRecord) string {
	switch {
	case rec.Name != "":
		return rec.Name
	case rec.MediaID != "":
		return fmt.Sprintf("%s:%s:%s", rec.Platform, rec.MediaType, rec.MediaID)
	default:
		return rec.Source
	}
}
