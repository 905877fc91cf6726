package bot

import (
	"strings"

	"go-streamrip-bot/queue"
)

// Services are the non-Telegram dependencies of the command handlers.
type Services struct {
	Pool     JobPool
	Resolver queue.Resolver
	Searcher Searcher
	// Platforms reports platform readiness for /settings.
	Platforms PlatformStatuser
	// History is nil when the database is disabled.
	History HistoryReader
	// ReloadCredentials re-reads platform credentials for `/settings reload`.
	ReloadCredentials func() error
}

// RegisterDefaultHandlers registers every command and callback handler and
// returns the status reporter already subscribed to the tracker. The caller
// runs the reporter.
func (b *TelegramBot) RegisterDefaultHandlers(svc Services) *StatusReporter {
	cfg := b.config
	tracker := svc.Pool.Tracker()
	logger := b.logger

	submitter := &jobSubmitter{
		pool:     svc.Pool,
		resolver: svc.Resolver,
		defaults: cfg.Streamrip,
		logger:   logger,
	}

	search := NewSearchHandler(svc.Searcher, submitter, b.messenger, cfg.Streamrip.MaxSearchResults, logger)

	handlers := []CommandHandler{
		NewStartHandler(b.router, b.messenger, logger),
		NewHelpHandler(b.router, b.messenger, logger),
		NewPingHandler(tracker, b.messenger, logger),
		NewIDHandler(b.messenger, logger),
		NewMirrorHandler(submitter, search, b.messenger, logger),
		NewLeechHandler(submitter, search, b.messenger, logger),
		search,
		NewStatusHandler(tracker, svc.History, cfg.IsOperator, cfg.Status.Limit, b.messenger, logger),
		NewCancelHandler(tracker, b.messenger, logger),
		NewCancelAllHandler(tracker, b.messenger, logger),
		NewSettingsHandler(tracker, svc.Platforms, cfg.Streamrip, cfg.IsOperator, svc.ReloadCredentials, b.messenger, logger),
	}
	for _, h := range handlers {
		b.RegisterCommandHandler(h)
	}
	b.router.RegisterCallback(search)

	reporter := NewStatusReporter(b.messenger, cfg.Status.UpdateInterval, logger.Named("status"))
	tracker.Subscribe(reporter.Observe)

	logger.Infof("Registered %d commands: /%s", len(b.router.GetRegisteredCommands()),
		strings.Join(b.router.GetRegisteredCommands(), ", /"))
	return reporter
}
