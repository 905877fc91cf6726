package bot

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gotd/td/tg"
	"go.uber.org/zap"

	"go-streamrip-bot/config"
	"go-streamrip-bot/downloader"
	"go-streamrip-bot/queue"
)

// MockTelegramAPI is a mock implementation of TelegramAPI for testing
type MockTelegramAPI struct {
	mu               sync.RWMutex
	sendMessageCalls []*tg.MessagesSendMessageRequest
	editMessageCalls []*tg.MessagesEditMessageRequest
	sendMediaCalls   []*tg.MessagesSendMediaRequest
	answerCalls      []*tg.MessagesSetBotCallbackAnswerRequest
	nextMessageID    int
	sendMessageError error
	// sendErrors fail the next sends in order before sendMessageError applies.
	sendErrors       []error
	editMessageError error
	repliedMessage   *tg.Message
}

func NewMockTelegramAPI() *MockTelegramAPI {
	return &MockTelegramAPI{
		nextMessageID: 100,
	}
}

func (m *MockTelegramAPI) MessagesSendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sendMessageCalls = append(m.sendMessageCalls, request)
	if len(m.sendErrors) > 0 {
		err := m.sendErrors[0]
		m.sendErrors = m.sendErrors[1:]
		return nil, err
	}
	if m.sendMessageError != nil {
		return nil, m.sendMessageError
	}

	messageID := m.nextMessageID
	m.nextMessageID++
	return &tg.UpdateShortSentMessage{
		ID:   messageID,
		Pts:  1,
		Date: int(time.Now().Unix()),
	}, nil
}

func (m *MockTelegramAPI) MessagesEditMessage(ctx context.Context, request *tg.MessagesEditMessageRequest) (tg.UpdatesClass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.editMessageCalls = append(m.editMessageCalls, request)
	if m.editMessageError != nil {
		return nil, m.editMessageError
	}
	return &tg.Updates{}, nil
}

func (m *MockTelegramAPI) MessagesSendMedia(ctx context.Context, request *tg.MessagesSendMediaRequest) (tg.UpdatesClass, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sendMediaCalls = append(m.sendMediaCalls, request)
	return &tg.Updates{}, nil
}

func (m *MockTelegramAPI) MessagesSetBotCallbackAnswer(ctx context.Context, request *tg.MessagesSetBotCallbackAnswerRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.answerCalls = append(m.answerCalls, request)
	return true, nil
}

func (m *MockTelegramAPI) MessagesGetMessages(ctx context.Context, id []tg.InputMessageClass) (tg.MessagesMessagesClass, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.repliedMessage == nil {
		return nil, fmt.Errorf("mock: message not found")
	}
	return &tg.MessagesMessages{Messages: []tg.MessageClass{m.repliedMessage}}, nil
}

func (m *MockTelegramAPI) SentTexts() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	texts := make([]string, len(m.sendMessageCalls))
	for i, call := range m.sendMessageCalls {
		texts[i] = call.Message
	}
	return texts
}

func (m *MockTelegramAPI) LastSent() *tg.MessagesSendMessageRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.sendMessageCalls) == 0 {
		return nil
	}
	return m.sendMessageCalls[len(m.sendMessageCalls)-1]
}

func (m *MockTelegramAPI) LastEdit() *tg.MessagesEditMessageRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.editMessageCalls) == 0 {
		return nil
	}
	return m.editMessageCalls[len(m.editMessageCalls)-1]
}

func (m *MockTelegramAPI) EditCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.editMessageCalls)
}

// mockFileUploader records uploaded paths and reports the whole file as sent.
type mockFileUploader struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (u *mockFileUploader) FromPath(ctx context.Context, path string, progress func(uploaded int64)) (tg.InputFileClass, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.err != nil {
		return nil, u.err
	}
	u.paths = append(u.paths, path)
	if progress != nil {
		if info, err := os.Stat(path); err == nil {
			progress(info.Size())
		}
	}
	return &tg.InputFile{ID: int64(len(u.paths)), Name: path}, nil
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func newTestMessenger() (*Messenger, *MockTelegramAPI) {
	api := NewMockTelegramAPI()
	return NewMessenger(api, &mockFileUploader{}, testLogger()), api
}

// fakePool admits jobs into a real tracker without running them.
type fakePool struct {
	tracker   *queue.Tracker
	submitted []queue.Request
}

func newFakePool(limits queue.Limits) *fakePool {
	return &fakePool{tracker: queue.NewTracker(limits, testLogger())}
}

func (p *fakePool) Submit(req queue.Request) (queue.Snapshot, error) {
	snap, _, err := p.tracker.Submit(context.Background(), req)
	if err != nil {
		return queue.Snapshot{}, err
	}
	p.submitted = append(p.submitted, req)
	return snap, nil
}

func (p *fakePool) Tracker() *queue.Tracker {
	return p.tracker
}

// fakeResolver maps every http link to a deezer track named after its last path segment.
type fakeResolver struct{}

func (fakeResolver) Resolve(ref string) (downloader.MediaDescriptor, error) {
	if strings.Contains(ref, "unsupported") {
		return downloader.MediaDescriptor{}, downloader.NewDownloadError(downloader.ErrorUnsupportedPlatform, "no platform for "+ref)
	}
	return downloader.MediaDescriptor{
		Platform: "deezer",
		Type:     downloader.MediaTrack,
		ID:       path.Base(ref),
		URL:      ref,
	}, nil
}

type fakeSearcher struct {
	results []downloader.SearchResult
	err     error
	queries []string
	opts    []downloader.SearchOptions
}

func (s *fakeSearcher) Search(ctx context.Context, query string, opts downloader.SearchOptions) ([]downloader.SearchResult, error) {
	s.queries = append(s.queries, query)
	s.opts = append(s.opts, opts)
	return s.results, s.err
}

func newTestSubmitter(pool JobPool) *jobSubmitter {
	return &jobSubmitter{
		pool:     pool,
		resolver: fakeResolver{},
		defaults: config.StreamripConfig{DefaultQuality: 3, DefaultCodec: "flac"},
		logger:   testLogger(),
	}
}
