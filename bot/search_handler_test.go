package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go-streamrip-bot/downloader"
	"go-streamrip-bot/queue"
)

func sampleResults(n int) []downloader.SearchResult {
	results := make([]downloader.SearchResult, n)
	for i := range results {
		results[i] = downloader.SearchResult{
			Platform: "qobuz",
			Type:     downloader.MediaAlbum,
			ID:       fmt.Sprintf("id%d", i),
			Title:    fmt.Sprintf("Album %d", i+1),
			Artist:   "Daft Punk",
		}
	}
	return results
}

func newTestSearch(results []downloader.SearchResult) (*SearchHandler, *fakePool, *MockTelegramAPI, *fakeSearcher) {
	messenger, api := newTestMessenger()
	pool := newFakePool(queue.Limits{})
	searcher := &fakeSearcher{results: results}
	return NewSearchHandler(searcher, newTestSubmitter(pool), messenger, 10, testLogger()), pool, api, searcher
}

// onlySession returns the single open menu.
func onlySession(t *testing.T, h *SearchHandler) *searchSession {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sessions) != 1 {
		t.Fatalf("Expected one open search, got %d", len(h.sessions))
	}
	for _, s := range h.sessions {
		return s
	}
	return nil
}

func TestSearchHandler_Handle(t *testing.T) {
	h, _, api, searcher := newTestSearch(sampleResults(7))

	err := h.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, MessageID: 5, Command: "srsearch", Args: "daft punk -p qobuz -t album"})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if len(searcher.queries) != 1 || searcher.queries[0] != "daft punk" {
		t.Fatalf("Unexpected queries %v", searcher.queries)
	}
	if opts := searcher.opts[0]; opts.Platform != "qobuz" || opts.Type != downloader.MediaAlbum || opts.Limit != 10 {
		t.Errorf("Unexpected search options %+v", opts)
	}

	if !strings.Contains(api.SentTexts()[0], "Searching for: daft punk") {
		t.Errorf("Expected a placeholder, got %v", api.SentTexts())
	}
	edit := api.LastEdit()
	if edit == nil || edit.ID != 100 {
		t.Fatalf("Expected the placeholder to be edited into the menu, got %#v", edit)
	}
	if !strings.Contains(edit.Message, "Page 1/2 • 7 results") || !strings.Contains(edit.Message, "Daft Punk - Album 5") {
		t.Errorf("Unexpected menu text %q", edit.Message)
	}
	if strings.Contains(edit.Message, "Album 6") {
		t.Error("First page should hold five results")
	}

	session := onlySession(t, h)
	if session.mode != "" || session.ownerID != 1 || session.commandID != 5 {
		t.Errorf("Unexpected session %+v", session)
	}
}

func TestSearchHandler_HandleRejectsBadInput(t *testing.T) {
	h, _, _, _ := newTestSearch(nil)

	tests := []struct {
		name   string
		cmdCtx *CommandContext
		want   string
	}{
		{"empty", &CommandContext{UserID: 1, ChatID: 1}, "Please provide a search query"},
		{"links", &CommandContext{UserID: 1, ChatID: 1, Args: "https://deezer.com/track/1"}, "takes a search query"},
		{"anonymous", &CommandContext{ChatID: -5, Args: "x"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Handle(context.Background(), tt.cmdCtx)
			var userErr *UserError
			if !errors.As(err, &userErr) {
				t.Fatalf("Expected a UserError, got %v", err)
			}
			if !strings.Contains(userErr.Message, tt.want) {
				t.Errorf("error = %q, want it to contain %q", userErr.Message, tt.want)
			}
		})
	}
}

func TestSearchHandler_NoResultsAndFailure(t *testing.T) {
	h, _, api, searcher := newTestSearch(nil)

	if err := h.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, Args: "nothing"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(api.LastEdit().Message, "No results found for: nothing") {
		t.Errorf("Unexpected text %q", api.LastEdit().Message)
	}

	searcher.err = errors.New("catalog down")
	if err := h.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, Args: "again"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !strings.Contains(api.LastEdit().Message, "Search failed") {
		t.Errorf("Unexpected text %q", api.LastEdit().Message)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sessions) != 0 {
		t.Error("No menu should be kept without results")
	}
}

func TestSearchHandler_Pagination(t *testing.T) {
	h, _, api, _ := newTestSearch(sampleResults(7))
	if err := h.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, Args: "daft"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	session := onlySession(t, h)

	next := searchCallback(session.token, 'n', 1)
	if err := h.HandleCallback(context.Background(), &CallbackContext{QueryID: 1, UserID: 1, Data: next}); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	edit := api.LastEdit()
	if !strings.Contains(edit.Message, "Page 2/2") || !strings.Contains(edit.Message, "7. ") {
		t.Errorf("Unexpected page text %q", edit.Message)
	}

	// Out of range pages are clamped.
	if err := h.HandleCallback(context.Background(), &CallbackContext{QueryID: 2, UserID: 1, Data: searchCallback(session.token, 'n', 9)}); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if session.page != 1 {
		t.Errorf("page = %d, want 1", session.page)
	}

	onlySession(t, h)
}

func TestSearchHandler_Select(t *testing.T) {
	h, pool, api, _ := newTestSearch(sampleResults(3))
	if _, err := pool.tracker.UpdateSettings(context.Background(), 1, func(s *queue.Settings) { s.Codec = "mp3" }); err != nil {
		t.Fatal(err)
	}

	if err := h.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, MessageID: 5, Args: "daft -q 2"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	session := onlySession(t, h)

	if err := h.HandleCallback(context.Background(), &CallbackContext{QueryID: 3, UserID: 1, Data: searchCallback(session.token, 's', 1)}); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}

	if len(pool.submitted) != 1 {
		t.Fatalf("Expected one job, got %d", len(pool.submitted))
	}
	req := pool.submitted[0]
	if req.Descriptor.ID != "id1" || req.Source != "qobuz:album:id1" || req.MessageID != 5 {
		t.Errorf("Unexpected request %+v", req)
	}
	if req.Quality != 2 || req.Codec != "mp3" || req.Mode != queue.ModeLeech {
		t.Errorf("Expected flag quality, saved codec and default mode, got %+v", req)
	}
	if !strings.Contains(api.LastEdit().Message, "Selected: Daft Punk - Album 2") {
		t.Errorf("Unexpected text %q", api.LastEdit().Message)
	}
	if last := api.answerCalls[len(api.answerCalls)-1]; last.Message != "Queued" {
		t.Errorf("Unexpected answer %q", last.Message)
	}

	// The menu is closed after a selection.
	if err := h.HandleCallback(context.Background(), &CallbackContext{QueryID: 4, UserID: 1, Data: searchCallback(session.token, 's', 0)}); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if len(pool.submitted) != 1 {
		t.Error("A closed menu must not queue more jobs")
	}
	if last := api.answerCalls[len(api.answerCalls)-1]; !strings.Contains(last.Message, "expired") {
		t.Errorf("Unexpected answer %q", last.Message)
	}
}

func TestSearchHandler_OwnerOnly(t *testing.T) {
	h, pool, api, _ := newTestSearch(sampleResults(3))
	if err := h.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: -10, Args: "daft"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	session := onlySession(t, h)

	if err := h.HandleCallback(context.Background(), &CallbackContext{QueryID: 5, UserID: 2, Data: searchCallback(session.token, 's', 0)}); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if len(pool.submitted) != 0 {
		t.Error("Another user must not select from the menu")
	}
	if last := api.answerCalls[len(api.answerCalls)-1]; !strings.Contains(last.Message, "someone else") {
		t.Errorf("Unexpected answer %q", last.Message)
	}
	onlySession(t, h)
}

func TestSearchHandler_Expiry(t *testing.T) {
	h, pool, api, _ := newTestSearch(sampleResults(3))
	now := time.Now()
	h.now = func() time.Time { return now }

	if err := h.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, Args: "daft"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	session := onlySession(t, h)

	now = now.Add(searchExpiry + time.Second)
	if err := h.HandleCallback(context.Background(), &CallbackContext{QueryID: 6, UserID: 1, Data: searchCallback(session.token, 's', 0)}); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if len(pool.submitted) != 0 {
		t.Error("An expired menu must not queue jobs")
	}
	if !strings.Contains(api.LastEdit().Message, "Search expired") {
		t.Errorf("Unexpected text %q", api.LastEdit().Message)
	}
}

func TestSearchHandler_Cancel(t *testing.T) {
	h, _, api, _ := newTestSearch(sampleResults(3))
	if err := h.Handle(context.Background(), &CommandContext{UserID: 1, ChatID: 1, Args: "daft"}); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	session := onlySession(t, h)

	if err := h.HandleCallback(context.Background(), &CallbackContext{QueryID: 7, UserID: 1, Data: searchCallback(session.token, 'x', 0)}); err != nil {
		t.Fatalf("HandleCallback failed: %v", err)
	}
	if !strings.Contains(api.LastEdit().Message, "Search cancelled") {
		t.Errorf("Unexpected text %q", api.LastEdit().Message)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sessions) != 0 {
		t.Error("Cancel should close the menu")
	}
}

func TestParseSearchCallback(t *testing.T) {
	tests := []struct {
		data      string
		wantToken string
		wantAct   byte
		wantArg   int
		ok        bool
	}{
		{"srs_abc_n2", "abc", 'n', 2, true},
		{"srs_abc_s14", "abc", 's', 14, true},
		{"srs_abc_x0", "abc", 'x', 0, true},
		{"srs_abc_z1", "", 0, 0, false},
		{"srs__n1", "", 0, 0, false},
		{"other_abc_n1", "", 0, 0, false},
	}
	for _, tt := range tests {
		token, action, ok := parseSearchCallback(tt.data)
		if token != tt.wantToken || action != tt.wantAct || ok != tt.ok {
			t.Errorf("parseSearchCallback(%q) = (%q, %q, %v)", tt.data, token, action, ok)
		}
		if ok && callbackArg(tt.data) != tt.wantArg {
			t.Errorf("callbackArg(%q) = %d, want %d", tt.data, callbackArg(tt.data), tt.wantArg)
		}
	}
}

func TestDescribeResult(t *testing.T) {
	track := downloader.SearchResult{Type: downloader.MediaTrack, Title: "One More Time", Artist: "Daft Punk", Album: "Discovery", Duration: 320 * time.Second}
	if got := describeResult(track); got != "**Daft Punk - One More Time** • Discovery (track, 5:20)" {
		t.Errorf("describeResult(track) = %q", got)
	}

	artist := downloader.SearchResult{Type: downloader.MediaArtist, Title: "Daft Punk", Artist: "Daft Punk"}
	if got := describeResult(artist); got != "**Daft Punk** (artist)" {
		t.Errorf("describeResult(artist) = %q", got)
	}
}
