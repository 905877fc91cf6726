package bot

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-streamrip-bot/downloader"
	"go-streamrip-bot/queue"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrorTypeConfiguration ErrorType = iota
	ErrorTypeNetwork
	ErrorTypeCommand
	ErrorTypeRuntime
)

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeConfiguration:
		return "CONFIGURATION"
	case ErrorTypeNetwork:
		return "NETWORK"
	case ErrorTypeCommand:
		return "COMMAND"
	case ErrorTypeRuntime:
		return "RUNTIME"
	default:
		return "UNKNOWN"
	}
}

// UserError is shown to the user verbatim. It marks bad input rather than
// a fault in the bot.
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

func userErrorf(format string, args ...interface{}) error {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// ErrorContext provides context information for error handling
type ErrorContext struct {
	UserID        int64
	ChatID        int64
	Command       string
	CorrelationID string
	Timestamp     time.Time
}

// ErrorHandler provides centralized error management for the bot
type ErrorHandler struct {
	logger    *zap.SugaredLogger
	messenger *Messenger
}

// NewErrorHandler creates a new ErrorHandler instance. messenger may be nil,
// in which case errors are only logged.
func NewErrorHandler(logger *zap.SugaredLogger, messenger *Messenger) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ErrorHandler{
		logger:    logger,
		messenger: messenger,
	}
}

// HandleCommandError logs a failed command and replies to the user.
func (e *ErrorHandler) HandleCommandError(err error, cmdCtx *CommandContext) {
	errorCtx := &ErrorContext{
		UserID:        cmdCtx.UserID,
		ChatID:        cmdCtx.ChatID,
		Command:       cmdCtx.Command,
		CorrelationID: e.generateCorrelationID(),
		Timestamp:     time.Now(),
	}

	var userErr *UserError
	switch {
	case errors.As(err, &userErr):
		e.logger.Infof("Rejected /%s from user %d: %s", cmdCtx.Command, cmdCtx.UserID, userErr.Message)
	case e.IsNetworkError(err):
		e.logStructuredError(ErrorTypeNetwork, err, errorCtx, "Network error while processing command")
	default:
		e.logStructuredError(ErrorTypeCommand, err, errorCtx, "Command processing error occurred")
	}

	if err := e.sendUserErrorMessage(cmdCtx, err, errorCtx.CorrelationID); err != nil {
		e.logger.Errorf("Failed to send error message to user (chat: %d, correlation: %s): %v",
			cmdCtx.ChatID, errorCtx.CorrelationID, err)
	}
}

// HandleRuntimeError handles unexpected runtime errors
func (e *ErrorHandler) HandleRuntimeError(err error) {
	errorCtx := &ErrorContext{
		CorrelationID: e.generateCorrelationID(),
		Timestamp:     time.Now(),
	}

	// Runtime errors are logged but don't stop the application
	e.logStructuredError(ErrorTypeRuntime, err, errorCtx, "Runtime error occurred")
}

// logStructuredError logs errors with structured information
func (e *ErrorHandler) logStructuredError(errorType ErrorType, err error, ctx *ErrorContext, message string) {
	fields := []interface{}{"type", errorType.String(), "error", err}
	if ctx != nil {
		fields = append(fields, "correlation", ctx.CorrelationID)
		if ctx.UserID != 0 {
			fields = append(fields, "user", ctx.UserID)
		}
		if ctx.ChatID != 0 {
			fields = append(fields, "chat", ctx.ChatID)
		}
		if ctx.Command != "" {
			fields = append(fields, "command", "/"+ctx.Command)
		}
	}

	switch errorType {
	case ErrorTypeCommand:
		e.logger.Warnw(message, fields...)
	default:
		e.logger.Errorw(message, fields...)
	}
}

// sendUserErrorMessage sends a user-friendly error message to the chat
func (e *ErrorHandler) sendUserErrorMessage(cmdCtx *CommandContext, err error, correlationID string) error {
	if e.messenger == nil {
		return fmt.Errorf("bot client is not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, sendErr := e.messenger.Send(ctx, cmdCtx.ChatID, cmdCtx.MessageID, e.createUserFriendlyMessage(err, correlationID), nil)
	return sendErr
}

// knownErrorMessage renders errors whose meaning the user can act on.
func knownErrorMessage(err error) (string, bool) {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return "⚠️ " + escapeMarkdown(userErr.Message), true
	}

	switch {
	case errors.Is(err, queue.ErrCapacityExceeded), errors.Is(err, queue.ErrDailyLimit):
		return "🚦 " + err.Error(), true
	case errors.Is(err, queue.ErrNotFound):
		return "🔍 No such task. It may have finished already.", true
	case errors.Is(err, queue.ErrUnauthorized):
		return "🔒 You can only cancel your own tasks.", true
	case errors.Is(err, queue.ErrAlreadyTerminal):
		return "ℹ️ That task has already finished.", true
	}

	if downloader.IsDownloadError(err) {
		return "❌ " + escapeMarkdown(describeDownloadError(err)), true
	}
	return "", false
}

// createUserFriendlyMessage creates a user-friendly error message
func (e *ErrorHandler) createUserFriendlyMessage(err error, correlationID string) string {
	if msg, ok := knownErrorMessage(err); ok {
		return msg
	}

	errorMsg := strings.ToLower(err.Error())

	var userMessage string
	switch {
	case strings.Contains(errorMsg, "timeout") || errors.Is(err, context.DeadlineExceeded):
		userMessage = "⏱️ The request took too long to process. Please try again."
	case strings.Contains(errorMsg, "flood") || strings.Contains(errorMsg, "too many"):
		userMessage = "🚦 I'm receiving too many requests right now. Please wait a moment and try again."
	case e.IsNetworkError(err):
		userMessage = "🌐 I'm having trouble connecting to Telegram's servers. Please try again in a moment."
	case strings.Contains(errorMsg, "permission") || strings.Contains(errorMsg, "forbidden"):
		userMessage = "🔒 I don't have permission to perform this action. Please check my permissions."
	default:
		userMessage = "❌ Something went wrong while processing your request. Please try again."
	}

	// Only the first 8 characters are shown.
	if len(correlationID) >= 8 {
		userMessage += fmt.Sprintf("\n\n🔧 Error ID: `%s`", correlationID[:8])
	}
	return userMessage
}

// describeDownloadError renders adapter failures for chat replies.
func describeDownloadError(err error) string {
	var de *downloader.DownloadError
	if !errors.As(err, &de) {
		return err.Error()
	}
	switch de.Type {
	case downloader.ErrorUnsupportedPlatform:
		return "Unsupported link. Send a Qobuz, Tidal, Deezer, SoundCloud or Last.fm playlist URL."
	case downloader.ErrorAuthenticationFailed:
		return "That platform is not available: " + de.Message
	default:
		return de.Message
	}
}

// generateCorrelationID generates a unique correlation ID for error tracking
func (e *ErrorHandler) generateCorrelationID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsNetworkError checks if an error is network-related
func (e *ErrorHandler) IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errorMsg := strings.ToLower(err.Error())
	networkKeywords := []string{
		"network", "connection", "dns", "tcp", "tls", "no route to host",
	}
	for _, keyword := range networkKeywords {
		if strings.Contains(errorMsg, keyword) {
			return true
		}
	}
	return false
}

// RecoverFromPanic recovers from panics and logs them as runtime errors.
// It must be deferred directly.
func (e *ErrorHandler) RecoverFromPanic() {
	if r := recover(); r != nil {
		var err error
		if re, ok := r.(error); ok {
			err = re
		} else {
			err = fmt.Errorf("panic: %v", r)
		}

		e.HandleRuntimeError(fmt.Errorf("recovered from panic: %w", err))
	}
}
