package bot

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// StartHandler implements CommandHandler for the /start command
type StartHandler struct {
	router    *CommandRouter
	messenger *Messenger
	logger    *zap.SugaredLogger
}

// NewStartHandler creates a new StartHandler instance
func NewStartHandler(router *CommandRouter, messenger *Messenger, logger *zap.SugaredLogger) *StartHandler {
	return &StartHandler{
		router:    router,
		messenger: messenger,
		logger:    logger,
	}
}

// Command returns the command string this handler processes
func (h *StartHandler) Command() string {
	return "start"
}

// Handle processes the /start command and sends a welcome message
func (h *StartHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	startTime := time.Now()

	h.logger.Infof("Processing /start command for user %d in chat %d", cmdCtx.UserID, cmdCtx.ChatID)

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	welcomeMessage := h.createWelcomeMessage(h.extractUserName(cmdCtx))

	if _, err := h.messenger.Send(timeoutCtx, cmdCtx.ChatID, cmdCtx.MessageID, welcomeMessage, nil); err != nil {
		return fmt.Errorf("failed to send welcome message: %w", err)
	}

	h.logger.Infof("Successfully processed /start command for user %d (took %v)",
		cmdCtx.UserID, time.Since(startTime))
	return nil
}

// extractUserName extracts the best available name for the user
func (h *StartHandler) extractUserName(cmdCtx *CommandContext) string {
	// Priority: FirstName > Username > "there" (fallback)
	if cmdCtx.FirstName != "" {
		if cmdCtx.LastName != "" {
			return cmdCtx.FirstName + " " + cmdCtx.LastName
		}
		return cmdCtx.FirstName
	}
	if cmdCtx.Username != "" {
		return "@" + cmdCtx.Username
	}
	return "there"
}

// createWelcomeMessage creates a personalized welcome message
func (h *StartHandler) createWelcomeMessage(userName string) string {
	return fmt.Sprintf("👋 Hello %s!\n\n"+
		"I download music from Qobuz, Tidal, Deezer and SoundCloud with streamrip.\n\n"+
		"• /%s <link> - Download and copy to the mirror\n"+
		"• /%s <link> - Download and upload here\n"+
		"• /%s <query> - Search and pick a result\n"+
		"• /%s - Show every command",
		escapeMarkdown(userName),
		h.router.Name("sr"), h.router.Name("srleech"), h.router.Name("srsearch"), h.router.Name("help"))
}
