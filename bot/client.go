package bot

import (
	"context"
	"fmt"

	"github.com/celestix/gotgproto"
	"github.com/celestix/gotgproto/dispatcher/handlers"
	"github.com/celestix/gotgproto/dispatcher/handlers/filters"
	"github.com/celestix/gotgproto/ext"
	"github.com/celestix/gotgproto/sessionMaker"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"

	"go-streamrip-bot/config"
)

// TelegramBot wraps the gotgproto client and provides bot lifecycle management
type TelegramBot struct {
	client       *gotgproto.Client
	logger       *zap.SugaredLogger
	zapLogger    *zap.Logger
	config       *config.BotConfig
	router       *CommandRouter
	messenger    *Messenger
	errorHandler *ErrorHandler
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewTelegramBot creates a new TelegramBot. The Telegram connection is made by Start.
func NewTelegramBot(cfg *config.BotConfig, logger *zap.Logger) (*TelegramBot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sugar := logger.Sugar()

	b := &TelegramBot{
		config:    cfg,
		logger:    sugar,
		zapLogger: logger,
		router:    NewCommandRouter(sugar, cfg.CmdSuffix),
		messenger: NewMessenger(nil, nil, sugar),
		ctx:       ctx,
		cancel:    cancel,
	}
	b.errorHandler = NewErrorHandler(sugar, b.messenger)
	b.router.SetErrorHandler(b.errorHandler)
	b.router.SetAuthorizer(cfg.IsAuthorizedChat)

	return b, nil
}

// Start logs in with the bot token, wires the update dispatcher and starts
// serving updates in the background.
func (b *TelegramBot) Start() error {
	b.logger.Infof("Starting Telegram bot...")

	clientOpts := &gotgproto.ClientOpts{
		Session: sessionMaker.SqlSession(sqlite.Open(b.config.SessionFile)),
		Logger:  b.zapLogger.Named("gotgproto"),
	}

	client, err := gotgproto.NewClient(b.config.APIID, b.config.APIHash, gotgproto.ClientTypeBot(b.config.Token), clientOpts)
	if err != nil {
		return fmt.Errorf("failed to create gotgproto client: %w", err)
	}
	b.client = client

	api := client.API()
	b.messenger.api = api
	b.messenger.files = NewFileUploader(api)

	client.Dispatcher.AddHandler(handlers.NewMessage(filters.Message.Text, b.onMessage))
	client.Dispatcher.AddHandler(handlers.NewCallbackQuery(filters.CallbackQuery.Prefix(callbackPrefix), b.onCallback))

	go func() {
		if err := client.Idle(); err != nil {
			b.logger.Errorf("gotgproto client stopped: %v", err)
		}
	}()

	b.logger.Infof("Telegram bot @%s started successfully", client.Self.Username)
	return nil
}

// Stop gracefully shuts down the bot
func (b *TelegramBot) Stop() error {
	b.logger.Infof("Stopping Telegram bot...")

	if b.cancel != nil {
		b.cancel()
	}

	if b.client != nil {
		b.client.Stop()
	}

	b.logger.Infof("Telegram bot stopped successfully")
	return nil
}

func (b *TelegramBot) onMessage(_ *ext.Context, u *ext.Update) error {
	msg := u.EffectiveMessage
	if msg == nil || msg.Message == nil {
		return nil
	}

	chatID := chatIDFromPeer(msg.Message.PeerID)
	if chat := u.EffectiveChat(); chat != nil {
		b.messenger.Remember(chatID, chat.GetInputPeer())
	}

	if err := b.router.RouteCommand(b.ctx, msg.Message, u.EffectiveUser()); err != nil {
		b.logger.Errorf("Failed to route message %d in chat %d: %v", msg.Message.ID, chatID, err)
	}
	return nil
}

func (b *TelegramBot) onCallback(_ *ext.Context, u *ext.Update) error {
	query := u.CallbackQuery
	if query == nil {
		return nil
	}

	chatID := chatIDFromPeer(query.Peer)
	if chat := u.EffectiveChat(); chat != nil {
		b.messenger.Remember(chatID, chat.GetInputPeer())
	}

	cb := &CallbackContext{
		QueryID:   query.QueryID,
		UserID:    query.UserID,
		ChatID:    chatID,
		MessageID: query.MsgID,
		Data:      string(query.Data),
	}
	if err := b.router.RouteCallback(b.ctx, cb); err != nil {
		b.logger.Errorf("Failed to handle callback from user %d: %v", query.UserID, err)
	}
	return nil
}

// GetClient returns the underlying gotgproto client for advanced usage
func (b *TelegramBot) GetClient() *gotgproto.Client {
	return b.client
}

// IsRunning returns true if the bot is currently running
func (b *TelegramBot) IsRunning() bool {
	return b.client != nil && b.ctx.Err() == nil
}

// RegisterCommandHandler registers a command handler with the bot's router
func (b *TelegramBot) RegisterCommandHandler(handler CommandHandler) {
	b.router.RegisterHandler(handler)
}

// GetRouter returns the command router for advanced usage
func (b *TelegramBot) GetRouter() *CommandRouter {
	return b.router
}

// GetErrorHandler returns the shared error handler
func (b *TelegramBot) GetErrorHandler() *ErrorHandler {
	return b.errorHandler
}

// Messenger returns the messenger used for every outgoing message and upload.
func (b *TelegramBot) Messenger() *Messenger {
	return b.messenger
}
