package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"go-streamrip-bot/downloader"
	"go-streamrip-bot/queue"
)

func observedLogger() (*zap.SugaredLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core).Sugar(), logs
}

func TestNewErrorHandler(t *testing.T) {
	logger := testLogger()
	messenger, _ := newTestMessenger()

	handler := NewErrorHandler(logger, messenger)

	if handler == nil {
		t.Fatal("NewErrorHandler returned nil")
	}
	if handler.logger != logger {
		t.Error("Logger not set correctly")
	}
	if handler.messenger != messenger {
		t.Error("Messenger not set correctly")
	}

	if NewErrorHandler(nil, nil).logger == nil {
		t.Error("A nil logger should be replaced by a no-op logger")
	}
}

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		expected  string
	}{
		{ErrorTypeConfiguration, "CONFIGURATION"},
		{ErrorTypeNetwork, "NETWORK"},
		{ErrorTypeCommand, "COMMAND"},
		{ErrorTypeRuntime, "RUNTIME"},
		{ErrorType(999), "UNKNOWN"},
	}

	for _, test := range tests {
		result := test.errorType.String()
		if result != test.expected {
			t.Errorf("ErrorType.String() = %s, expected %s", result, test.expected)
		}
	}
}

func TestHandleRuntimeError(t *testing.T) {
	logger, logs := observedLogger()
	handler := NewErrorHandler(logger, nil)

	handler.HandleRuntimeError(errors.New("test runtime error"))

	entries := logs.FilterMessage("Runtime error occurred").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one runtime error entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["type"] != "RUNTIME" {
		t.Errorf("type field = %v, want RUNTIME", fields["type"])
	}
	if fields["correlation"] == "" {
		t.Error("Log should contain correlation ID")
	}
	if !strings.Contains(fmt.Sprint(fields["error"]), "test runtime error") {
		t.Errorf("Log should contain the error message, got %v", fields["error"])
	}
}

func TestHandleCommandError(t *testing.T) {
	logger, logs := observedLogger()
	messenger, api := newTestMessenger()
	handler := NewErrorHandler(logger, messenger)

	cmdCtx := &CommandContext{
		UserID:    12345,
		ChatID:    67890,
		MessageID: 3,
		Command:   "test",
	}

	handler.HandleCommandError(errors.New("test command error"), cmdCtx)

	entries := logs.FilterMessage("Command processing error occurred").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one command error entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["type"] != "COMMAND" || fields["user"] != int64(12345) || fields["chat"] != int64(67890) || fields["command"] != "/test" {
		t.Errorf("Unexpected log fields: %v", fields)
	}

	sent := api.LastSent()
	if sent == nil {
		t.Fatal("Expected an error reply")
	}
	if !strings.Contains(sent.Message, "Something went wrong") || !strings.Contains(sent.Message, "Error ID:") {
		t.Errorf("Unexpected reply: %q", sent.Message)
	}
	if reply, ok := sent.ReplyTo.(*tg.InputReplyToMessage); !ok || reply.ReplyToMsgID != 3 {
		t.Errorf("Reply should thread under the command message, got %#v", sent.ReplyTo)
	}
}

func TestHandleCommandError_UserError(t *testing.T) {
	logger, logs := observedLogger()
	messenger, api := newTestMessenger()
	handler := NewErrorHandler(logger, messenger)

	handler.HandleCommandError(userErrorf("Invalid quality %q.", "9"), &CommandContext{UserID: 1, ChatID: 1, Command: "sr"})

	if logs.FilterLevelExact(zapcore.InfoLevel).Len() != 1 {
		t.Error("User errors should be logged at info level")
	}
	if logs.FilterLevelExact(zapcore.WarnLevel).Len() != 0 {
		t.Error("User errors should not be logged as warnings")
	}

	sent := api.LastSent()
	if sent == nil || sent.Message != `⚠️ Invalid quality "9".` {
		t.Errorf("Unexpected reply: %v", api.SentTexts())
	}
}

func TestIsNetworkError(t *testing.T) {
	handler := NewErrorHandler(testLogger(), nil)

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "network error",
			err:      errors.New("network connection failed"),
			expected: true,
		},
		{
			name:     "dns error",
			err:      errors.New("dns resolution failed"),
			expected: true,
		},
		{
			name:     "net.Error implementation",
			err:      fmt.Errorf("wrapped: %w", &mockNetError{msg: "i/o timeout", timeout: true}),
			expected: true,
		},
		{
			name:     "non-network error",
			err:      errors.New("invalid input"),
			expected: false,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := handler.IsNetworkError(test.err)
			if result != test.expected {
				t.Errorf("IsNetworkError(%v) = %v, expected %v", test.err, result, test.expected)
			}
		})
	}
}

func TestCreateUserFriendlyMessage(t *testing.T) {
	handler := NewErrorHandler(testLogger(), nil)

	tests := []struct {
		name           string
		err            error
		expectedSubstr string
		wantID         bool
	}{
		{
			name:           "network error",
			err:            errors.New("network connection failed"),
			expectedSubstr: "🌐 I'm having trouble connecting",
			wantID:         true,
		},
		{
			name:           "timeout error",
			err:            fmt.Errorf("send: %w", context.DeadlineExceeded),
			expectedSubstr: "⏱️ The request took too long",
			wantID:         true,
		},
		{
			name:           "flood error",
			err:            errors.New("FLOOD_WAIT_30"),
			expectedSubstr: "🚦 I'm receiving too many requests",
			wantID:         true,
		},
		{
			name:           "permission error",
			err:            errors.New("permission denied"),
			expectedSubstr: "🔒 I don't have permission",
			wantID:         true,
		},
		{
			name:           "generic error",
			err:            errors.New("something broke"),
			expectedSubstr: "❌ Something went wrong",
			wantID:         true,
		},
		{
			name:           "capacity exceeded",
			err:            fmt.Errorf("%w: 2 of 2 running", queue.ErrCapacityExceeded),
			expectedSubstr: "🚦 task limit reached",
		},
		{
			name:           "cancel someone else's job",
			err:            queue.ErrUnauthorized,
			expectedSubstr: "🔒 You can only cancel your own tasks.",
		},
		{
			name:           "unsupported link",
			err:            downloader.NewDownloadError(downloader.ErrorUnsupportedPlatform, "no platform for example.com"),
			expectedSubstr: "❌ Unsupported link.",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := handler.createUserFriendlyMessage(test.err, "12345678abcdef")

			if !strings.Contains(result, test.expectedSubstr) {
				t.Errorf("createUserFriendlyMessage() should contain %q, got %q", test.expectedSubstr, result)
			}

			hasID := strings.Contains(result, "Error ID: `12345678`")
			if hasID != test.wantID {
				t.Errorf("correlation ID shown = %v, want %v (%q)", hasID, test.wantID, result)
			}
		})
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	handler := NewErrorHandler(testLogger(), nil)

	id1 := handler.generateCorrelationID()
	id2 := handler.generateCorrelationID()

	if id1 == "" || id2 == "" {
		t.Fatal("Correlation IDs should not be empty")
	}
	if id1 == id2 {
		t.Errorf("Correlation IDs should be unique, got %s twice", id1)
	}
	if strings.Contains(id1, "-") || len(id1) != 32 {
		t.Errorf("Correlation ID should be 32 hex characters, got %q", id1)
	}
}

func TestRecoverFromPanic(t *testing.T) {
	logger, logs := observedLogger()
	handler := NewErrorHandler(logger, nil)

	func() {
		defer handler.RecoverFromPanic()
		panic("test panic")
	}()

	entries := logs.FilterMessage("Runtime error occurred").All()
	if len(entries) != 1 {
		t.Fatalf("Expected panic to be logged as runtime error, got %d entries", len(entries))
	}
	msg := fmt.Sprint(entries[0].ContextMap()["error"])
	if !strings.Contains(msg, "recovered from panic") || !strings.Contains(msg, "test panic") {
		t.Errorf("Log should contain the panic message, got %q", msg)
	}
}

// Mock network error for testing
type mockNetError struct {
	msg       string
	timeout   bool
	temporary bool
}

func (e *mockNetError) Error() string   { return e.msg }
func (e *mockNetError) Timeout() bool   { return e.timeout }
func (e *mockNetError) Temporary() bool { return e.temporary }
