package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// IDHandler implements CommandHandler for the /id command
type IDHandler struct {
	messenger *Messenger
	logger    *zap.SugaredLogger
}

// NewIDHandler creates a new IDHandler instance
func NewIDHandler(messenger *Messenger, logger *zap.SugaredLogger) *IDHandler {
	return &IDHandler{
		messenger: messenger,
		logger:    logger,
	}
}

// Command returns the command string this handler processes
func (h *IDHandler) Command() string {
	return "id"
}

// Handle processes the /id command and returns chat or user ID. The ids it
// prints are the ones OWNER_ID, SUDO_USERS and AUTHORIZED_CHATS expect.
func (h *IDHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	startTime := time.Now()

	h.logger.Infof("Processing /id command for user %d in chat %d", cmdCtx.UserID, cmdCtx.ChatID)

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	message := h.createChatIDMessage(cmdCtx)
	if cmdCtx.ReplyToMessageID != 0 {
		repliedMessage, err := h.messenger.RepliedMessage(timeoutCtx, cmdCtx.ReplyToMessageID)
		if err != nil {
			// Fall back to the chat id.
			h.logger.Warnf("Failed to get replied message: %v", err)
		} else {
			message = h.createUserIDMessage(repliedMessage.FromID)
		}
	}

	if _, err := h.messenger.Send(timeoutCtx, cmdCtx.ChatID, cmdCtx.MessageID, message, nil); err != nil {
		return fmt.Errorf("failed to send ID message: %w", err)
	}

	h.logger.Infof("Successfully processed /id command for user %d (took %v)",
		cmdCtx.UserID, time.Since(startTime))
	return nil
}

// createUserIDMessage creates a message showing the user ID
func (h *IDHandler) createUserIDMessage(fromID tg.PeerClass) string {
	if fromID == nil {
		return "Unable to determine user ID"
	}
	if _, ok := fromID.(*tg.PeerUser); !ok {
		return fmt.Sprintf("Sender chat id: `%d`\n(Click/Tap to copy)", chatIDFromPeer(fromID))
	}
	return fmt.Sprintf("User id: `%d`\n(Click/Tap to copy)", chatIDFromPeer(fromID))
}

// createChatIDMessage creates a message showing the chat ID and the sender's ID
func (h *IDHandler) createChatIDMessage(cmdCtx *CommandContext) string {
	message := fmt.Sprintf("Chat id: `%d`", cmdCtx.ChatID)
	if cmdCtx.UserID != 0 && cmdCtx.UserID != cmdCtx.ChatID {
		message += fmt.Sprintf("\nYour id: `%d`", cmdCtx.UserID)
	}
	return message + "\n(Click/Tap to copy)"
}
