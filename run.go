package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"go-streamrip-bot/bot"
	"go-streamrip-bot/config"
	"go-streamrip-bot/delivery"
	"go-streamrip-bot/downloader"
	"go-streamrip-bot/logging"
	"go-streamrip-bot/queue"
)

// lockFileName guards a download directory against a second bot process.
const lockFileName = ".streamrip-bot.lock"

func runBot(ctx context.Context, envFiles []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(envFiles)
	if err != nil {
		return err
	}

	zapLogger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closeLog()
	logger := zapLogger.Sugar()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	lock := flock.New(filepath.Join(cfg.DownloadDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire download dir lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another bot instance is already using %s", cfg.DownloadDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warnf("Failed to release download dir lock: %v", err)
		}
	}()

	catalog := downloader.NewCatalog(cfg.Streamrip.RequestsPerMinute, &http.Client{Timeout: 20 * time.Second})
	registry := downloader.NewRegistry(cfg.Platforms, catalog, logger.Named("platforms"))

	var clientOpts []downloader.Option
	if path := cfg.Streamrip.RipConfigPath; path != "" {
		if err := downloader.WriteRipConfig(path, cfg.DownloadDir, cfg.Streamrip, cfg.Platforms); err != nil {
			return fmt.Errorf("failed to write streamrip config: %w", err)
		}
		clientOpts = append(clientOpts, downloader.WithRipConfig(path))
	}
	client := downloader.NewClient(cfg.Streamrip, registry, logger.Named("streamrip"), clientOpts...)

	trackerOpts := []queue.TrackerOption{queue.WithOperators(cfg.IsOperator)}
	var history bot.HistoryReader
	if cfg.Streamrip.EnableDatabase {
		store, err := queue.OpenHistory(cfg.Streamrip.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to open history database: %w", err)
		}
		defer store.Close()
		trackerOpts = append(trackerOpts, queue.WithStore(store))
		history = store
	}

	tracker := queue.NewTracker(queue.Limits{
		PerUser: cfg.Limits.UserMaxTasks,
		Global:  cfg.Limits.BotMaxTasks,
		Daily:   cfg.Limits.DailyTaskLimit,
	}, logger.Named("queue"), trackerOpts...)
	go tracker.Run(ctx)

	telegramBot, err := bot.NewTelegramBot(cfg, zapLogger)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	deliverer := delivery.New(telegramBot.Messenger(), delivery.Config{
		MirrorDir: cfg.MirrorDir,
		SplitSize: cfg.LeechSplitSize,
	}, logger.Named("delivery"))

	pool := queue.NewPool(tracker, registry, client, deliverer, queue.PoolConfig{
		DownloadDir: cfg.DownloadDir,
		Concurrency: cfg.Streamrip.ConcurrentDownloads,
		SizeLimit:   cfg.Limits.SizeLimitBytes,
	}, logger.Named("pool"))

	reporter := telegramBot.RegisterDefaultHandlers(bot.Services{
		Pool:              pool,
		Resolver:          registry,
		Searcher:          registry,
		Platforms:         registry,
		History:           history,
		ReloadCredentials: reloadCredentials(cfg, registry),
	})

	if err := telegramBot.Start(); err != nil {
		pool.Close()
		return fmt.Errorf("failed to start bot: %w", err)
	}
	go reporter.Run(ctx)

	logPlatforms(logger, registry.Statuses())
	logger.Infof("Bot is running with %d download slots. Press Ctrl+C to stop.", cfg.Streamrip.ConcurrentDownloads)

	<-ctx.Done()
	logger.Infof("Shutting down...")

	pool.Close()
	// Last flush so cancelled jobs show their final state.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	reporter.Flush(flushCtx)
	cancel()

	return telegramBot.Stop()
}

// reloadCredentials re-reads the platform file and environment and pushes the
// result into the registry and the streamrip config.
func reloadCredentials(cfg *config.BotConfig, registry *downloader.Registry) func() error {
	return func() error {
		creds, err := config.LoadPlatforms(cfg.Streamrip.ConfigFile, config.NewEnvValidator())
		if err != nil {
			return err
		}
		if path := cfg.Streamrip.RipConfigPath; path != "" {
			if err := downloader.WriteRipConfig(path, cfg.DownloadDir, cfg.Streamrip, creds); err != nil {
				return err
			}
		}
		registry.Reload(creds)
		return nil
	}
}

func logPlatforms(logger *zap.SugaredLogger, statuses []downloader.PlatformStatus) {
	for _, st := range statuses {
		switch {
		case !st.Enabled:
			logger.Infof("Platform %s disabled", st.Name)
		case !st.Configured:
			logger.Warnf("Platform %s enabled but missing credentials", st.Name)
		default:
			logger.Infof("Platform %s ready (max quality %d)", st.Name, st.MaxQuality)
		}
	}
}

func loadConfig(envFiles []string) (*config.BotConfig, error) {
	cfg, err := config.LoadConfig(envFiles...)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}
