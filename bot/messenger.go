package bot

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gotd/td/telegram/uploader"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"go-streamrip-bot/delivery"
)

// channelIDOffset converts MTProto channel ids to the -100… form users know
// from the Bot API.
const channelIDOffset int64 = 1_000_000_000_000

const maxFloodRetries = 3

// TelegramAPI is the subset of tg.Client the bot calls. Kept narrow so tests
// can substitute a mock.
type TelegramAPI interface {
	MessagesSendMessage(ctx context.Context, request *tg.MessagesSendMessageRequest) (tg.UpdatesClass, error)
	MessagesEditMessage(ctx context.Context, request *tg.MessagesEditMessageRequest) (tg.UpdatesClass, error)
	MessagesSendMedia(ctx context.Context, request *tg.MessagesSendMediaRequest) (tg.UpdatesClass, error)
	MessagesSetBotCallbackAnswer(ctx context.Context, request *tg.MessagesSetBotCallbackAnswerRequest) (bool, error)
	MessagesGetMessages(ctx context.Context, id []tg.InputMessageClass) (tg.MessagesMessagesClass, error)
}

// FileUploader pushes a local file to Telegram's servers. progress receives
// cumulative bytes.
type FileUploader interface {
	FromPath(ctx context.Context, path string, progress func(uploaded int64)) (tg.InputFileClass, error)
}

// Button is one inline keyboard button carrying callback data.
type Button struct {
	Text string
	Data string
}

// Messenger sends, edits and uploads on behalf of every handler.
type Messenger struct {
	api    TelegramAPI
	files  FileUploader
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	peers map[int64]tg.InputPeerClass
}

// NewMessenger creates a Messenger. files may be nil when uploads are not needed.
func NewMessenger(api TelegramAPI, files FileUploader, logger *zap.SugaredLogger) *Messenger {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Messenger{
		api:    api,
		files:  files,
		logger: logger,
		peers:  make(map[int64]tg.InputPeerClass),
	}
}

// Remember stores the input peer for chatID so later messages reach
// groups and channels with the right access hash.
func (m *Messenger) Remember(chatID int64, peer tg.InputPeerClass) {
	if peer == nil || chatID == 0 {
		return
	}
	if _, empty := peer.(*tg.InputPeerEmpty); empty {
		return
	}
	m.mu.Lock()
	m.peers[chatID] = peer
	m.mu.Unlock()
}

func (m *Messenger) peer(chatID int64) tg.InputPeerClass {
	m.mu.RLock()
	peer, ok := m.peers[chatID]
	m.mu.RUnlock()
	if ok {
		return peer
	}

	switch {
	case chatID > 0:
		return &tg.InputPeerUser{UserID: chatID}
	case chatID < -channelIDOffset:
		return &tg.InputPeerChannel{ChannelID: -chatID - channelIDOffset}
	default:
		return &tg.InputPeerChat{ChatID: -chatID}
	}
}

// Send posts text (with **bold** and `code` markup) to chatID and returns the
// new message id. replyTo of 0 sends a plain message.
func (m *Messenger) Send(ctx context.Context, chatID int64, replyTo int, text string, keyboard [][]Button) (int, error) {
	if m.api == nil {
		return 0, fmt.Errorf("telegram API is not initialized")
	}

	plain, entities := parseMarkdown(text)
	request := &tg.MessagesSendMessageRequest{
		Peer:      m.peer(chatID),
		Message:   plain,
		RandomID:  randomID(),
		Entities:  entities,
		NoWebpage: true,
	}
	if replyTo != 0 {
		request.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: replyTo}
	}
	if markup := inlineMarkup(keyboard); markup != nil {
		request.ReplyMarkup = markup
	}

	var updates tg.UpdatesClass
	err := m.withFloodWait(ctx, func() error {
		var err error
		updates, err = m.api.MessagesSendMessage(ctx, request)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to send message via Telegram API: %w", err)
	}
	return extractMessageID(updates), nil
}

// Edit replaces the text of an earlier message. Unchanged text is not an error.
func (m *Messenger) Edit(ctx context.Context, chatID int64, messageID int, text string, keyboard [][]Button) error {
	if m.api == nil {
		return fmt.Errorf("telegram API is not initialized")
	}

	plain, entities := parseMarkdown(text)
	request := &tg.MessagesEditMessageRequest{
		Peer:      m.peer(chatID),
		ID:        messageID,
		Message:   plain,
		Entities:  entities,
		NoWebpage: true,
	}
	if markup := inlineMarkup(keyboard); markup != nil {
		request.ReplyMarkup = markup
	}

	err := m.withFloodWait(ctx, func() error {
		_, err := m.api.MessagesEditMessage(ctx, request)
		return err
	})
	if err != nil && !tgerr.Is(err, "MESSAGE_NOT_MODIFIED") {
		return fmt.Errorf("failed to edit message %d: %w", messageID, err)
	}
	return nil
}

// Answer acknowledges a callback query, optionally showing text as a toast.
func (m *Messenger) Answer(ctx context.Context, queryID int64, text string) error {
	if m.api == nil {
		return fmt.Errorf("telegram API is not initialized")
	}
	_, err := m.api.MessagesSetBotCallbackAnswer(ctx, &tg.MessagesSetBotCallbackAnswerRequest{
		QueryID: queryID,
		Message: text,
	})
	return err
}

// RepliedMessage fetches a message by id from a private chat or basic group.
func (m *Messenger) RepliedMessage(ctx context.Context, messageID int) (*tg.Message, error) {
	if m.api == nil {
		return nil, fmt.Errorf("telegram API is not initialized")
	}

	response, err := m.api.MessagesGetMessages(ctx, []tg.InputMessageClass{&tg.InputMessageID{ID: messageID}})
	if err != nil {
		return nil, fmt.Errorf("failed to get replied message: %w", err)
	}

	var messages []tg.MessageClass
	switch msgs := response.(type) {
	case *tg.MessagesMessages:
		messages = msgs.Messages
	case *tg.MessagesMessagesSlice:
		messages = msgs.Messages
	}
	if len(messages) > 0 {
		if msg, ok := messages[0].(*tg.Message); ok {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("replied message not found")
}

// Upload implements delivery.Uploader. Whole audio files are sent with audio
// attributes so Telegram shows a player; parts go out as plain documents.
func (m *Messenger) Upload(ctx context.Context, chatID int64, replyTo int, file delivery.File, progress func(sent int64)) error {
	if m.api == nil || m.files == nil {
		return fmt.Errorf("telegram uploads are not initialized")
	}

	input, err := m.files.FromPath(ctx, file.Path, progress)
	if err != nil {
		return fmt.Errorf("upload %s: %w", file.Name, err)
	}

	attributes := []tg.DocumentAttributeClass{&tg.DocumentAttributeFilename{FileName: file.Name}}
	if file.Audio != nil {
		attributes = append(attributes, &tg.DocumentAttributeAudio{
			Duration:  int(file.Audio.Duration / time.Second),
			Title:     file.Audio.Title,
			Performer: file.Audio.Performer,
		})
	}

	request := &tg.MessagesSendMediaRequest{
		Peer: m.peer(chatID),
		Media: &tg.InputMediaUploadedDocument{
			File:       input,
			MimeType:   mimeType(file.Name),
			Attributes: attributes,
			ForceFile:  file.Audio == nil,
		},
		Message:  file.Caption,
		RandomID: randomID(),
	}
	if replyTo != 0 {
		request.ReplyTo = &tg.InputReplyToMessage{ReplyToMsgID: replyTo}
	}

	return m.withFloodWait(ctx, func() error {
		_, err := m.api.MessagesSendMedia(ctx, request)
		return err
	})
}

// withFloodWait retries op after FLOOD_WAIT errors, sleeping for the
// duration Telegram asks for.
func (m *Messenger) withFloodWait(ctx context.Context, op func() error) error {
	attempts := 0
	operation := func() error {
		err := op()
		if err == nil {
			return nil
		}
		wait, ok := tgerr.AsFloodWait(err)
		if !ok || attempts >= maxFloodRetries {
			return backoff.Permanent(err)
		}
		attempts++
		m.logger.Warnf("Telegram flood wait, retrying in %s (attempt %d/%d)", wait, attempts, maxFloodRetries)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(&backoff.ZeroBackOff{}, ctx))
}

func inlineMarkup(keyboard [][]Button) *tg.ReplyInlineMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	markup := &tg.ReplyInlineMarkup{}
	for _, row := range keyboard {
		buttons := make([]tg.KeyboardButtonClass, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, &tg.KeyboardButtonCallback{Text: b.Text, Data: []byte(b.Data)})
		}
		markup.Rows = append(markup.Rows, tg.KeyboardButtonRow{Buttons: buttons})
	}
	return markup
}

// extractMessageID extracts the message ID from Telegram API updates
func extractMessageID(updates tg.UpdatesClass) int {
	switch u := updates.(type) {
	case *tg.Updates:
		for _, update := range u.Updates {
			switch msgUpdate := update.(type) {
			case *tg.UpdateMessageID:
				return msgUpdate.ID
			case *tg.UpdateNewMessage:
				if msg, ok := msgUpdate.Message.(*tg.Message); ok {
					return msg.ID
				}
			case *tg.UpdateNewChannelMessage:
				if msg, ok := msgUpdate.Message.(*tg.Message); ok {
					return msg.ID
				}
			}
		}
	case *tg.UpdateShortSentMessage:
		return u.ID
	}
	return 0
}

func mimeType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".flac":
		return "audio/flac"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg", ".opus":
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

func randomID() int64 {
	return rand.Int64()
}

// chatIDFromPeer maps a peer to the chat id used in config and logs.
func chatIDFromPeer(peer tg.PeerClass) int64 {
	switch p := peer.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return -p.ChatID
	case *tg.PeerChannel:
		return -channelIDOffset - p.ChannelID
	}
	return 0
}

// gotdUploader adapts the gotd uploader to FileUploader.
type gotdUploader struct {
	raw *tg.Client
}

// NewFileUploader returns a FileUploader backed by raw.
func NewFileUploader(raw *tg.Client) FileUploader {
	return &gotdUploader{raw: raw}
}

func (g *gotdUploader) FromPath(ctx context.Context, path string, progress func(uploaded int64)) (tg.InputFileClass, error) {
	u := uploader.NewUploader(g.raw).WithPartSize(uploader.MaximumPartSize)
	if progress != nil {
		u = u.WithProgress(&uploadProgress{report: progress})
	}
	return u.FromPath(ctx, path)
}

// uploadProgress serialises the uploader's concurrent chunk callbacks.
type uploadProgress struct {
	mu     sync.Mutex
	report func(int64)
	last   int64
}

func (p *uploadProgress) Chunk(_ context.Context, state uploader.ProgressState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state.Uploaded > p.last {
		p.last = state.Uploaded
		p.report(state.Uploaded)
	}
	return nil
}
