package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go-streamrip-bot/queue"
)

type fakeHistory struct {
	records []queue.HistoryRecord
	err     error
	owner   int64
}

func (f *fakeHistory) Recent(ctx context.Context, ownerID int64, limit int) ([]queue.HistoryRecord, error) {
	f.owner = ownerID
	if len(f.records) > limit {
		return f.records[:limit], f.err
	}
	return f.records, f.err
}

func isOperator(id int64) bool { return id == 99 }

// newTestTracker returns a tracker whose clock ticks a millisecond per read
// so listing order is deterministic.
func newTestTracker(opts ...queue.TrackerOption) *queue.Tracker {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
	opts = append(opts, queue.WithClock(clock), queue.WithOperators(isOperator))
	return queue.NewTracker(queue.Limits{}, testLogger(), opts...)
}

func submitJob(t *testing.T, tracker *queue.Tracker, owner int64, source string) queue.Snapshot {
	t.Helper()
	snap, _, err := tracker.Submit(context.Background(), queue.Request{
		OwnerID: owner,
		ChatID:  owner,
		Source:  source,
		Quality: 3,
		Codec:   "flac",
		Mode:    queue.ModeLeech,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	return snap
}

func TestStatusHandler_Empty(t *testing.T) {
	messenger, api := newTestMessenger()
	tracker := newTestTracker()
	handler := NewStatusHandler(tracker, nil, isOperator, 0, messenger, testLogger())

	if handler.Command() != "status" {
		t.Errorf("Expected command 'status', got: %s", handler.Command())
	}

	if err := handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, MessageID: 2}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	sent := api.LastSent()
	if sent == nil || !strings.Contains(sent.Message, "Queue: Empty") {
		t.Errorf("Expected empty queue text, got %v", api.SentTexts())
	}
}

func TestStatusHandler_UserJobs(t *testing.T) {
	messenger, api := newTestMessenger()
	tracker := newTestTracker()
	history := &fakeHistory{records: []queue.HistoryRecord{
		{JobID: "old1", State: "Done", Platform: "qobuz", MediaType: "album", MediaID: "xyz", FinishedAt: time.Now().Add(-2 * time.Hour)},
		{JobID: "old2", State: "Failed", Name: "My Mix", FinishedAt: time.Now().Add(-time.Hour)},
	}}
	handler := NewStatusHandler(tracker, history, isOperator, 2, messenger, testLogger())

	running := submitJob(t, tracker, 1, "https://deezer.com/track/1")
	if _, err := tracker.Transition(running.ID, queue.StateDownloading); err != nil {
		t.Fatal(err)
	}
	queued := submitJob(t, tracker, 1, "https://deezer.com/track/2")
	submitJob(t, tracker, 1, "https://deezer.com/track/3")
	other := submitJob(t, tracker, 2, "https://deezer.com/track/4")

	if err := handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	text := api.LastSent().Message
	for _, want := range []string{
		"Downloading with streamrip",
		queued.ID + " https://deezer.com/track/2 • Queued",
		"…and 1 more",
		"Recently finished:",
		"old1 Done qobuz:album:xyz (2h0m0s ago)",
		"old2 Failed My Mix",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("Status should contain %q, got %q", want, text)
		}
	}
	if strings.Contains(text, other.ID) {
		t.Error("Other users' jobs must not be listed")
	}
	if history.owner != 1 {
		t.Errorf("History read for user %d, want 1", history.owner)
	}
}

func TestStatusHandler_HistoryErrorIsNotFatal(t *testing.T) {
	messenger, api := newTestMessenger()
	tracker := newTestTracker()
	handler := NewStatusHandler(tracker, &fakeHistory{err: errors.New("db locked")}, isOperator, 0, messenger, testLogger())

	if err := handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if strings.Contains(api.LastSent().Message, "Recently finished") {
		t.Error("History section should be omitted on error")
	}
}

func TestStatusHandler_All(t *testing.T) {
	messenger, api := newTestMessenger()
	tracker := newTestTracker()
	handler := NewStatusHandler(tracker, nil, isOperator, 0, messenger, testLogger())

	a := submitJob(t, tracker, 1, "https://deezer.com/track/1")
	b := submitJob(t, tracker, 2, "https://deezer.com/track/2")

	err := handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, Args: "all"})
	var userErr *UserError
	if !errors.As(err, &userErr) {
		t.Fatalf("Non-operators should get a UserError, got %v", err)
	}

	if err := handler.Handle(context.Background(), &CommandContext{UserID: 99, ChatID: 99, Args: "ALL"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	sent := api.LastSent()
	if !strings.Contains(sent.Message, a.ID) || !strings.Contains(sent.Message, b.ID) || !strings.Contains(sent.Message, "TOTAL") {
		t.Errorf("Expected a table with both jobs, got %q", sent.Message)
	}
	if len(sent.Entities) != 2 {
		t.Errorf("Expected bold title and pre table entities, got %v", sent.Entities)
	}

	err = handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, Args: "everything"})
	if !errors.As(err, &userErr) || !strings.Contains(userErr.Message, "Usage") {
		t.Errorf("Unknown arguments should show usage, got %v", err)
	}
}

func TestCancelHandler(t *testing.T) {
	messenger, api := newTestMessenger()
	tracker := newTestTracker()
	handler := NewCancelHandler(tracker, messenger, testLogger())

	if handler.Command() != "cancel" {
		t.Errorf("Expected command 'cancel', got: %s", handler.Command())
	}

	err := handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1})
	var userErr *UserError
	if !errors.As(err, &userErr) {
		t.Fatalf("Expected a UserError without tasks, got %v", err)
	}

	// A single task is cancelled without an id.
	only := submitJob(t, tracker, 1, "https://deezer.com/track/1")
	if err := handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if snap, _ := tracker.Get(only.ID); snap.State != queue.StateCancelled {
		t.Errorf("state = %s, want Cancelled", snap.State)
	}
	if !strings.Contains(api.LastSent().Message, "Cancelled "+only.ID) {
		t.Errorf("Unexpected reply %q", api.LastSent().Message)
	}

	// Several tasks need an id.
	first := submitJob(t, tracker, 1, "https://deezer.com/track/2")
	second := submitJob(t, tracker, 1, "https://deezer.com/track/3")
	if err := handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	text := api.LastSent().Message
	if !strings.Contains(text, "You have 2 tasks") || !strings.Contains(text, "/cancel "+first.ID) || !strings.Contains(text, "/cancel "+second.ID) {
		t.Errorf("Unexpected picker %q", text)
	}

	// Someone else's task.
	err = handler.Handle(context.Background(), &CommandContext{UserID: 2, ChatID: 2, Args: first.ID})
	if !errors.Is(err, queue.ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}

	// Operators may cancel any task.
	if err := handler.Handle(context.Background(), &CommandContext{UserID: 99, ChatID: 99, Args: first.ID + " please"}); err != nil {
		t.Fatalf("Operator cancel failed: %v", err)
	}

	err = handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, Args: first.ID})
	if !errors.Is(err, queue.ErrAlreadyTerminal) {
		t.Errorf("Expected ErrAlreadyTerminal, got %v", err)
	}
	err = handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, Args: "nope"})
	if !errors.Is(err, queue.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestCancelAllHandler(t *testing.T) {
	messenger, api := newTestMessenger()
	tracker := newTestTracker()
	handler := NewCancelAllHandler(tracker, messenger, testLogger())

	err := handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1})
	var userErr *UserError
	if !errors.As(err, &userErr) {
		t.Fatalf("Expected a UserError with nothing to cancel, got %v", err)
	}

	mine := submitJob(t, tracker, 1, "https://deezer.com/track/1")
	submitJob(t, tracker, 1, "https://deezer.com/track/2")
	theirs := submitJob(t, tracker, 2, "https://deezer.com/track/3")

	if err := handler.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(api.LastSent().Message, "Cancelled 2 tasks") || !strings.Contains(api.LastSent().Message, mine.ID) {
		t.Errorf("Unexpected reply %q", api.LastSent().Message)
	}
	if snap, _ := tracker.Get(theirs.ID); snap.State != queue.StateQueued {
		t.Error("Other users' tasks must survive /cancelall")
	}

	if err := handler.Handle(context.Background(), &CommandContext{UserID: 99, ChatID: 99}); err != nil {
		t.Fatalf("Operator /cancelall failed: %v", err)
	}
	if snap, _ := tracker.Get(theirs.ID); snap.State != queue.StateCancelled {
		t.Error("Operators cancel every task")
	}
}
