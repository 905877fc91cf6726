package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-streamrip-bot/downloader"
	"go-streamrip-bot/queue"
)

const (
	callbackPrefix = "srs_"
	resultsPerPage = 5
	searchTimeout  = 30 * time.Second
	// Menus stop accepting presses after this long.
	searchExpiry = 5 * time.Minute
)

// Searcher queries the platform catalogues.
type Searcher interface {
	Search(ctx context.Context, query string, opts downloader.SearchOptions) ([]downloader.SearchResult, error)
}

// searchSession is one open result menu.
type searchSession struct {
	token     string
	ownerID   int64
	chatID    int64
	commandID int
	menuID    int
	query     string
	results   []downloader.SearchResult
	page      int
	args      ParsedArgs
	mode      queue.Mode
	createdAt time.Time
}

func (s *searchSession) pages() int {
	return (len(s.results) + resultsPerPage - 1) / resultsPerPage
}

// SearchHandler implements /srsearch and the result menu buttons.
type SearchHandler struct {
	searcher  Searcher
	submitter *jobSubmitter
	messenger *Messenger
	limit     int
	logger    *zap.SugaredLogger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*searchSession
}

// NewSearchHandler creates a SearchHandler returning at most limit results per platform.
func NewSearchHandler(searcher Searcher, submitter *jobSubmitter, messenger *Messenger, limit int, logger *zap.SugaredLogger) *SearchHandler {
	return &SearchHandler{
		searcher:  searcher,
		submitter: submitter,
		messenger: messenger,
		limit:     limit,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*searchSession),
	}
}

// Command returns the command string this handler processes
func (h *SearchHandler) Command() string {
	return "srsearch"
}

// Aliases returns the alternative command names.
func (h *SearchHandler) Aliases() []string {
	return []string{"streamripsearch", "sripsearch"}
}

// Prefix marks callback data owned by the search menu.
func (h *SearchHandler) Prefix() string {
	return callbackPrefix
}

// Handle runs a search and shows the result menu. The selected result is
// delivered with the user's saved mode.
func (h *SearchHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	h.logger.Infof("Processing /srsearch command for user %d in chat %d", cmdCtx.UserID, cmdCtx.ChatID)

	if err := requireUser(cmdCtx); err != nil {
		return err
	}

	parsed, err := ParseArgs(cmdCtx.Args)
	if err != nil {
		return err
	}
	if len(parsed.Links) > 0 {
		return userErrorf("/srsearch takes a search query. Use /sr or /srleech for links.")
	}
	if parsed.Query == "" {
		return userErrorf("Please provide a search query, for example: /srsearch daft punk discovery -t album")
	}
	return h.open(ctx, cmdCtx, parsed, "")
}

// open searches and replaces a "Searching" placeholder with the menu.
func (h *SearchHandler) open(ctx context.Context, cmdCtx *CommandContext, parsed ParsedArgs, mode queue.Mode) error {
	startTime := time.Now()
	h.sweep()

	placeholder := fmt.Sprintf("🔍 **Searching for:** `%s`\n\n⏳ Please wait...", escapeMarkdown(parsed.Query))
	sendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	menuID, err := h.messenger.Send(sendCtx, cmdCtx.ChatID, cmdCtx.MessageID, placeholder, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to send search placeholder: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	results, err := h.searcher.Search(searchCtx, parsed.Query, downloader.SearchOptions{
		Platform: parsed.Platform,
		Type:     parsed.Type,
		Limit:    h.limit,
	})
	cancel()

	editCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err != nil {
		h.logger.Warnf("Search %q for user %d failed: %v", parsed.Query, cmdCtx.UserID, err)
		msg, ok := knownErrorMessage(err)
		if !ok {
			msg = "❌ Search failed. Please try again later."
		}
		return h.messenger.Edit(editCtx, cmdCtx.ChatID, menuID, msg, nil)
	}
	if len(results) == 0 {
		text := fmt.Sprintf("❌ **No results found for:** `%s`\n\n💡 Try different keywords or check spelling.", escapeMarkdown(parsed.Query))
		return h.messenger.Edit(editCtx, cmdCtx.ChatID, menuID, text, nil)
	}

	session := &searchSession{
		token:     strings.ReplaceAll(uuid.NewString(), "-", "")[:10],
		ownerID:   cmdCtx.UserID,
		chatID:    cmdCtx.ChatID,
		commandID: cmdCtx.MessageID,
		menuID:    menuID,
		query:     parsed.Query,
		results:   results,
		args:      parsed,
		mode:      mode,
		createdAt: h.now(),
	}
	h.mu.Lock()
	h.sessions[session.token] = session
	h.mu.Unlock()

	text, keyboard := renderSearchPage(session)
	if err := h.messenger.Edit(editCtx, cmdCtx.ChatID, menuID, text, keyboard); err != nil {
		return err
	}

	h.logger.Infof("Search %q for user %d returned %d results (took %v)",
		parsed.Query, cmdCtx.UserID, len(results), time.Since(startTime))
	return nil
}

// HandleCallback processes page, select and cancel presses.
func (h *SearchHandler) HandleCallback(ctx context.Context, cb *CallbackContext) error {
	token, action, ok := parseSearchCallback(cb.Data)
	if !ok {
		return h.messenger.Answer(ctx, cb.QueryID, "Unknown button.")
	}

	h.mu.Lock()
	session, exists := h.sessions[token]
	if exists && session.ownerID != cb.UserID {
		h.mu.Unlock()
		return h.messenger.Answer(ctx, cb.QueryID, "This menu belongs to someone else.")
	}
	expired := exists && h.now().Sub(session.createdAt) > searchExpiry
	if expired || (exists && action != 'n') {
		delete(h.sessions, token)
	}
	h.mu.Unlock()

	if !exists {
		return h.messenger.Answer(ctx, cb.QueryID, "This search has expired.")
	}
	if expired {
		_ = h.messenger.Edit(ctx, session.chatID, session.menuID, "⌛ Search expired. Run the command again.", nil)
		return h.messenger.Answer(ctx, cb.QueryID, "This search has expired.")
	}

	switch action {
	case 'n':
		h.mu.Lock()
		session.page = clampPage(session, callbackArg(cb.Data))
		text, keyboard := renderSearchPage(session)
		h.mu.Unlock()
		if err := h.messenger.Edit(ctx, session.chatID, session.menuID, text, keyboard); err != nil {
			return err
		}
		return h.messenger.Answer(ctx, cb.QueryID, "")

	case 'x':
		_ = h.messenger.Edit(ctx, session.chatID, session.menuID, "❌ Search cancelled.", nil)
		return h.messenger.Answer(ctx, cb.QueryID, "Cancelled")

	case 's':
		index := callbackArg(cb.Data)
		if index < 0 || index >= len(session.results) {
			return h.messenger.Answer(ctx, cb.QueryID, "That result is no longer available.")
		}
		return h.selectResult(ctx, cb, session, session.results[index])
	}
	return h.messenger.Answer(ctx, cb.QueryID, "Unknown button.")
}

func (h *SearchHandler) selectResult(ctx context.Context, cb *CallbackContext, session *searchSession, result downloader.SearchResult) error {
	desc := result.Descriptor()
	snap, err := h.submitter.submit(ctx, submission{
		ownerID:    session.ownerID,
		chatID:     session.chatID,
		messageID:  session.commandID,
		source:     desc.String(),
		descriptor: desc,
		args:       session.args,
		mode:       session.mode,
	})
	if err != nil {
		msg, ok := knownErrorMessage(err)
		if !ok {
			msg = "❌ Could not queue the download."
			h.logger.Errorf("Failed to queue search result %s for user %d: %v", desc, session.ownerID, err)
		}
		_ = h.messenger.Edit(ctx, session.chatID, session.menuID, msg, nil)
		return h.messenger.Answer(ctx, cb.QueryID, "Not queued")
	}

	text := fmt.Sprintf("✅ **Selected:** %s\n🎯 %s\n\nQueued as task `%s`.",
		escapeMarkdown(resultTitle(result)), titleCase(result.Platform), snap.ID)
	if err := h.messenger.Edit(ctx, session.chatID, session.menuID, text, nil); err != nil {
		h.logger.Warnf("Failed to update search menu %d: %v", session.menuID, err)
	}
	return h.messenger.Answer(ctx, cb.QueryID, "Queued")
}

// sweep drops menus nobody answered.
func (h *SearchHandler) sweep() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for token, s := range h.sessions {
		if h.now().Sub(s.createdAt) > searchExpiry {
			delete(h.sessions, token)
		}
	}
}

func renderSearchPage(s *searchSession) (string, [][]Button) {
	var b strings.Builder
	fmt.Fprintf(&b, "🎵 **Search results for:** `%s`\n", escapeMarkdown(s.query))
	fmt.Fprintf(&b, "📄 Page %d/%d • %d results\n\n", s.page+1, s.pages(), len(s.results))

	start := s.page * resultsPerPage
	end := min(start+resultsPerPage, len(s.results))

	var picks []Button
	for i := start; i < end; i++ {
		r := s.results[i]
		fmt.Fprintf(&b, "%d. %s %s\n", i+1, platformEmoji(r.Platform), describeResult(r))
		picks = append(picks, Button{Text: strconv.Itoa(i + 1), Data: searchCallback(s.token, 's', i)})
	}

	var nav []Button
	if s.page > 0 {
		nav = append(nav, Button{Text: "⬅️ Prev", Data: searchCallback(s.token, 'n', s.page-1)})
	}
	nav = append(nav, Button{Text: "❌ Cancel", Data: searchCallback(s.token, 'x', 0)})
	if s.page+1 < s.pages() {
		nav = append(nav, Button{Text: "Next ➡️", Data: searchCallback(s.token, 'n', s.page+1)})
	}

	b.WriteString("\nTap a number to download.")
	return b.String(), [][]Button{picks, nav}
}

func describeResult(r downloader.SearchResult) string {
	line := fmt.Sprintf("**%s**", escapeMarkdown(resultTitle(r)))
	if r.Album != "" && r.Type == downloader.MediaTrack {
		line += " • " + escapeMarkdown(r.Album)
	}
	line += fmt.Sprintf(" (%s", r.Type)
	if r.Duration > 0 {
		line += ", " + formatDuration(r.Duration)
	}
	return line + ")"
}

func resultTitle(r downloader.SearchResult) string {
	if r.Artist == "" || r.Type == downloader.MediaArtist {
		return r.Title
	}
	return r.Artist + " - " + r.Title
}

// formatDuration renders m:ss.
func formatDuration(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func platformEmoji(name string) string {
	switch name {
	case "qobuz":
		return "🟦"
	case "tidal":
		return "⚫"
	case "deezer":
		return "🟣"
	case "soundcloud":
		return "🟠"
	}
	return "🎵"
}

func searchCallback(token string, action byte, arg int) string {
	return fmt.Sprintf("%s%s_%c%d", callbackPrefix, token, action, arg)
}

// parseSearchCallback splits srs_<token>_<action><arg>.
func parseSearchCallback(data string) (token string, action byte, ok bool) {
	rest, found := strings.CutPrefix(data, callbackPrefix)
	if !found {
		return "", 0, false
	}
	token, tail, found := strings.Cut(rest, "_")
	if !found || token == "" || tail == "" {
		return "", 0, false
	}
	switch tail[0] {
	case 'n', 's', 'x':
		return token, tail[0], true
	}
	return "", 0, false
}

// callbackArg returns the number after the action letter, or -1.
func callbackArg(data string) int {
	i := strings.LastIndexByte(data, '_')
	if i < 0 || i+2 > len(data) {
		return -1
	}
	n, err := strconv.Atoi(data[i+2:])
	if err != nil {
		return -1
	}
	return n
}

func clampPage(s *searchSession, page int) int {
	return max(0, min(page, s.pages()-1))
}
