package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go-streamrip-bot/queue"
)

// PingHandler implements CommandHandler for the /ping command
type PingHandler struct {
	tracker   *queue.Tracker
	messenger *Messenger
	logger    *zap.SugaredLogger
}

// NewPingHandler creates a new PingHandler instance
func NewPingHandler(tracker *queue.Tracker, messenger *Messenger, logger *zap.SugaredLogger) *PingHandler {
	return &PingHandler{
		tracker:   tracker,
		messenger: messenger,
		logger:    logger,
	}
}

// Command returns the command string this handler processes
func (h *PingHandler) Command() string {
	return "ping"
}

// Handle processes the /ping command and sends a pong response with timestamp and latency
func (h *PingHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	startTime := time.Now()

	h.logger.Infof("Processing /ping command for user %d in chat %d", cmdCtx.UserID, cmdCtx.ChatID)

	// Short timeout for immediate response
	timeoutCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	commandLatency := startTime.Sub(cmdCtx.Timestamp)
	pongMessage := h.createPongMessage(startTime, commandLatency)

	if _, err := h.messenger.Send(timeoutCtx, cmdCtx.ChatID, cmdCtx.MessageID, pongMessage, nil); err != nil {
		return fmt.Errorf("failed to send pong message: %w", err)
	}

	h.logger.Infof("Successfully processed /ping command for user %d (response time: %v, command latency: %v)",
		cmdCtx.UserID, time.Since(startTime), commandLatency)
	return nil
}

// createPongMessage creates a pong response with timestamp, latency and queue load
func (h *PingHandler) createPongMessage(responseTime time.Time, commandLatency time.Duration) string {
	var active, queued int
	for _, snap := range h.tracker.All() {
		switch {
		case snap.State.IsActive():
			active++
		case snap.State == queue.StateQueued:
			queued++
		}
	}

	return fmt.Sprintf("🏓 **Pong!**\n\n"+
		"📅 **Timestamp:** %s\n"+
		"⚡ **Command Latency:** %v\n"+
		"📥 **Tasks:** %d running, %d queued\n"+
		"✅ **Status:** Bot is responsive and operational",
		responseTime.Format("2006-01-02 15:04:05 MST"),
		commandLatency.Round(time.Millisecond),
		active, queued)
}
