package bot

import (
	"context"
	"time"

	"github.com/gotd/td/tg"
)

// CommandHandler defines the interface for handling bot commands
type CommandHandler interface {
	// Handle processes a command with the given context
	Handle(ctx context.Context, cmdCtx *CommandContext) error
	// Command returns the command string this handler processes (e.g., "start", "ping")
	Command() string
}

// AliasedHandler is implemented by handlers reachable under more than one name.
type AliasedHandler interface {
	Aliases() []string
}

// CallbackHandler handles inline keyboard presses whose data starts with Prefix.
type CallbackHandler interface {
	Prefix() string
	HandleCallback(ctx context.Context, cb *CallbackContext) error
}

// CommandContext provides context information for command processing
type CommandContext struct {
	// Message is the original Telegram message
	Message *tg.Message
	// UserID is the ID of the user who sent the command (0 for anonymous channel posts)
	UserID int64
	// ChatID is the ID of the chat where the command was sent
	ChatID int64
	// MessageID is the ID of the message containing the command
	MessageID int
	// Username is the username of the user (may be empty)
	Username string
	// FirstName is the first name of the user
	FirstName string
	// LastName is the last name of the user (may be empty)
	LastName string
	// Command is the registered name without the leading slash, bot mention or suffix
	Command string
	// Args contains command arguments (text after the command)
	Args string
	// ReplyToMessageID is the ID of the message being replied to (0 if not a reply)
	ReplyToMessageID int
	// Timestamp is when the command was received
	Timestamp time.Time
}

// CallbackContext describes one inline button press.
type CallbackContext struct {
	QueryID   int64
	UserID    int64
	ChatID    int64
	MessageID int
	Data      string
}

// requireUser rejects messages without a user sender, such as channel posts
// and anonymous group admins. Jobs and settings are keyed by user.
func requireUser(cmdCtx *CommandContext) error {
	if cmdCtx.UserID == 0 {
		return userErrorf("Send this command from your own account, not as a channel or anonymous admin.")
	}
	return nil
}
