package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-streamrip-bot/queue"
)

// CancelHandler implements CommandHandler for the /cancel command
type CancelHandler struct {
	tracker   *queue.Tracker
	messenger *Messenger
	logger    *zap.SugaredLogger
}

// NewCancelHandler creates a new CancelHandler instance
func NewCancelHandler(tracker *queue.Tracker, messenger *Messenger, logger *zap.SugaredLogger) *CancelHandler {
	return &CancelHandler{
		tracker:   tracker,
		messenger: messenger,
		logger:    logger,
	}
}

// Command returns the command string this handler processes
func (h *CancelHandler) Command() string {
	return "cancel"
}

// Handle cancels the task named in the arguments. Without an id the sender's
// only unfinished task is cancelled.
func (h *CancelHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	startTime := time.Now()

	h.logger.Infof("Processing /cancel command for user %d in chat %d", cmdCtx.UserID, cmdCtx.ChatID)

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	id := strings.TrimSpace(cmdCtx.Args)
	if fields := strings.Fields(id); len(fields) > 0 {
		id = fields[0]
	}

	if id == "" {
		active := h.tracker.ActiveIDs(cmdCtx.UserID)
		switch len(active) {
		case 0:
			return userErrorf("You have no running tasks.")
		case 1:
			id = active[0]
		default:
			message := fmt.Sprintf("📋 **You have %d tasks.** Pick one:\n", len(active))
			for _, activeID := range active {
				message += fmt.Sprintf("• `/cancel %s`\n", activeID)
			}
			_, err := h.messenger.Send(timeoutCtx, cmdCtx.ChatID, cmdCtx.MessageID, message, nil)
			return err
		}
	}

	snap, err := h.tracker.Cancel(id, cmdCtx.UserID)
	if err != nil {
		return err
	}

	message := fmt.Sprintf("🚫 **Cancelled** `%s`\n%s", snap.ID, escapeMarkdown(snap.DisplayName()))
	if _, err := h.messenger.Send(timeoutCtx, cmdCtx.ChatID, cmdCtx.MessageID, message, nil); err != nil {
		return fmt.Errorf("failed to send cancel confirmation: %w", err)
	}

	h.logger.Infof("Successfully processed /cancel command for user %d: job %s (took %v)",
		cmdCtx.UserID, snap.ID, time.Since(startTime))
	return nil
}

// CancelAllHandler implements CommandHandler for the /cancelall command
type CancelAllHandler struct {
	tracker   *queue.Tracker
	messenger *Messenger
	logger    *zap.SugaredLogger
}

// NewCancelAllHandler creates a new CancelAllHandler instance
func NewCancelAllHandler(tracker *queue.Tracker, messenger *Messenger, logger *zap.SugaredLogger) *CancelAllHandler {
	return &CancelAllHandler{
		tracker:   tracker,
		messenger: messenger,
		logger:    logger,
	}
}

// Command returns the command string this handler processes
func (h *CancelAllHandler) Command() string {
	return "cancelall"
}

// Handle cancels every task the sender may cancel. Operators cancel everyone's.
func (h *CancelAllHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	startTime := time.Now()

	h.logger.Infof("Processing /cancelall command for user %d in chat %d", cmdCtx.UserID, cmdCtx.ChatID)

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cancelled := h.tracker.CancelAll(cmdCtx.UserID)
	if len(cancelled) == 0 {
		return userErrorf("There is nothing to cancel.")
	}

	ids := make([]string, 0, len(cancelled))
	for _, snap := range cancelled {
		ids = append(ids, snap.ID)
	}
	message := fmt.Sprintf("🚫 **Cancelled %d tasks**\n`%s`", len(ids), strings.Join(ids, "`, `"))
	if _, err := h.messenger.Send(timeoutCtx, cmdCtx.ChatID, cmdCtx.MessageID, message, nil); err != nil {
		return fmt.Errorf("failed to send cancel confirmation: %w", err)
	}

	h.logger.Infof("Successfully processed /cancelall command for user %d: %d jobs (took %v)",
		cmdCtx.UserID, len(ids), time.Since(startTime))
	return nil
}
