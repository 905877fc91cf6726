package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"
)

// CommandRouter handles routing of commands to their respective handlers
type CommandRouter struct {
	handlers     map[string]CommandHandler
	callbacks    []CallbackHandler
	suffix       string
	authorize    func(chatID, userID int64) bool
	logger       *zap.SugaredLogger
	errorHandler *ErrorHandler
}

// NewCommandRouter creates a new command router. suffix is appended to every
// registered command name so several bots can share a group.
func NewCommandRouter(logger *zap.SugaredLogger, suffix string) *CommandRouter {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &CommandRouter{
		handlers: make(map[string]CommandHandler),
		suffix:   strings.ToLower(suffix),
		logger:   logger,
	}
}

// SetErrorHandler sets the error handler for the router
func (r *CommandRouter) SetErrorHandler(errorHandler *ErrorHandler) {
	r.errorHandler = errorHandler
}

// SetAuthorizer restricts which chats may use the bot.
func (r *CommandRouter) SetAuthorizer(authorize func(chatID, userID int64) bool) {
	r.authorize = authorize
}

// Name returns the command as users have to type it.
func (r *CommandRouter) Name(command string) string {
	return command + r.suffix
}

// RegisterHandler registers a command handler under its command and aliases
func (r *CommandRouter) RegisterHandler(handler CommandHandler) {
	names := []string{handler.Command()}
	if aliased, ok := handler.(AliasedHandler); ok {
		names = append(names, aliased.Aliases()...)
	}
	for _, name := range names {
		r.handlers[r.Name(name)] = handler
	}
	r.logger.Debugf("Registered handler for command: /%s", strings.Join(names, ", /"))
}

// RegisterCallback registers a handler for inline button presses.
func (r *CommandRouter) RegisterCallback(handler CallbackHandler) {
	r.callbacks = append(r.callbacks, handler)
}

// RouteCommand processes an incoming message and routes it to the appropriate
// handler. sender may be nil.
func (r *CommandRouter) RouteCommand(ctx context.Context, message *tg.Message, sender *tg.User) error {
	cmdCtx := r.extractCommandContext(message, sender)

	// Skip if not a command
	if cmdCtx.Command == "" {
		return nil
	}

	handler, exists := r.handlers[cmdCtx.Command]
	if !exists {
		r.logger.Debugf("No handler found for command: /%s", cmdCtx.Command)
		return nil
	}
	// Canonical name for logs and error reports.
	cmdCtx.Command = handler.Command()

	if r.authorize != nil && !r.authorize(cmdCtx.ChatID, cmdCtx.UserID) {
		r.logger.Warnf("Rejected /%s from user %d in unauthorized chat %d", cmdCtx.Command, cmdCtx.UserID, cmdCtx.ChatID)
		if r.errorHandler != nil {
			r.errorHandler.HandleCommandError(userErrorf("This chat is not authorized to use the bot."), cmdCtx)
		}
		return nil
	}

	r.logger.Debugf("Routing command /%s to handler (user: %d, chat: %d)", cmdCtx.Command, cmdCtx.UserID, cmdCtx.ChatID)

	if r.errorHandler != nil {
		defer r.errorHandler.RecoverFromPanic()
	}

	if err := handler.Handle(ctx, cmdCtx); err != nil {
		if r.errorHandler != nil {
			r.errorHandler.HandleCommandError(err, cmdCtx)
			return nil
		}
		return fmt.Errorf("handler failed for command /%s: %w", cmdCtx.Command, err)
	}
	return nil
}

// RouteCallback dispatches a button press to the handler owning its prefix.
func (r *CommandRouter) RouteCallback(ctx context.Context, cb *CallbackContext) error {
	for _, handler := range r.callbacks {
		if !strings.HasPrefix(cb.Data, handler.Prefix()) {
			continue
		}
		if r.errorHandler != nil {
			defer r.errorHandler.RecoverFromPanic()
		}
		if err := handler.HandleCallback(ctx, cb); err != nil {
			if r.errorHandler != nil {
				r.errorHandler.HandleRuntimeError(fmt.Errorf("callback %q from user %d: %w", cb.Data, cb.UserID, err))
				return nil
			}
			return err
		}
		return nil
	}
	r.logger.Debugf("No callback handler for data %q", cb.Data)
	return nil
}

// extractCommandContext extracts command context information from a Telegram message
func (r *CommandRouter) extractCommandContext(message *tg.Message, sender *tg.User) *CommandContext {
	cmdCtx := &CommandContext{
		Message:   message,
		MessageID: message.ID,
		ChatID:    chatIDFromPeer(message.PeerID),
		Timestamp: time.Now(),
	}
	if message.Date > 0 {
		cmdCtx.Timestamp = time.Unix(int64(message.Date), 0)
	}

	switch from := message.FromID.(type) {
	case *tg.PeerUser:
		cmdCtx.UserID = from.UserID
	case nil:
		// Private chats omit FromID.
		if peer, ok := message.PeerID.(*tg.PeerUser); ok {
			cmdCtx.UserID = peer.UserID
		}
	}

	if sender != nil {
		cmdCtx.Username = sender.Username
		cmdCtx.FirstName = sender.FirstName
		cmdCtx.LastName = sender.LastName
	}

	if replyHeader, ok := message.ReplyTo.(*tg.MessageReplyHeader); ok {
		cmdCtx.ReplyToMessageID = replyHeader.ReplyToMsgID
	}

	text := strings.TrimSpace(message.Message)
	if !strings.HasPrefix(text, "/") {
		return cmdCtx
	}

	command, args := text[1:], ""
	if i := strings.IndexFunc(command, unicode.IsSpace); i >= 0 {
		command, args = command[:i], strings.TrimSpace(command[i:])
	}
	if at := strings.IndexByte(command, '@'); at >= 0 {
		command = command[:at]
	}

	cmdCtx.Command = strings.ToLower(command)
	cmdCtx.Args = args
	return cmdCtx
}

// GetRegisteredCommands returns every registered command name, sorted
func (r *CommandRouter) GetRegisteredCommands() []string {
	commands := make([]string, 0, len(r.handlers))
	for command := range r.handlers {
		commands = append(commands, command)
	}
	sort.Strings(commands)
	return commands
}

// HasHandler returns true if a handler is registered for the given command
func (r *CommandRouter) HasHandler(command string) bool {
	_, exists := r.handlers[command]
	return exists
}
