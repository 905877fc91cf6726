package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"go-streamrip-bot/config"
	"go-streamrip-bot/downloader"
	"go-streamrip-bot/queue"
)

// PlatformStatuser reports which platforms are usable.
type PlatformStatuser interface {
	Statuses() []downloader.PlatformStatus
}

// SettingsHandler implements CommandHandler for the /settings command
type SettingsHandler struct {
	tracker    *queue.Tracker
	platforms  PlatformStatuser
	defaults   config.StreamripConfig
	isOperator func(int64) bool
	reload     func() error
	messenger  *Messenger
	logger     *zap.SugaredLogger
}

// NewSettingsHandler creates a new SettingsHandler. reload re-reads platform
// credentials; nil disables `/settings reload`.
func NewSettingsHandler(tracker *queue.Tracker, platforms PlatformStatuser, defaults config.StreamripConfig,
	isOperator func(int64) bool, reload func() error, messenger *Messenger, logger *zap.SugaredLogger) *SettingsHandler {
	return &SettingsHandler{
		tracker:    tracker,
		platforms:  platforms,
		defaults:   defaults,
		isOperator: isOperator,
		reload:     reload,
		messenger:  messenger,
		logger:     logger,
	}
}

// Command returns the command string this handler processes
func (h *SettingsHandler) Command() string {
	return "settings"
}

// Handle shows or changes the sender's download defaults.
//
//	/settings
//	/settings quality <0-4>
//	/settings codec <flac|mp3|m4a|ogg|opus>
//	/settings mode <mirror|leech>
//	/settings reset
//	/settings reload   (operators)
func (h *SettingsHandler) Handle(ctx context.Context, cmdCtx *CommandContext) error {
	startTime := time.Now()

	h.logger.Infof("Processing /settings command for user %d in chat %d", cmdCtx.UserID, cmdCtx.ChatID)

	if err := requireUser(cmdCtx); err != nil {
		return err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fields := strings.Fields(cmdCtx.Args)
	var (
		reply string
		err   error
	)
	switch {
	case len(fields) == 0:
		reply = h.createSettingsMessage(h.tracker.Settings(timeoutCtx, cmdCtx.UserID))
	case strings.EqualFold(fields[0], "reload"):
		reply, err = h.reloadCredentials(cmdCtx.UserID)
	case strings.EqualFold(fields[0], "reset"):
		var settings queue.Settings
		settings, err = h.tracker.UpdateSettings(timeoutCtx, cmdCtx.UserID, func(s *queue.Settings) {
			*s = queue.Settings{}
		})
		reply = "♻️ **Settings reset**\n\n" + h.createSettingsMessage(settings)
	case len(fields) == 2:
		reply, err = h.updateSetting(timeoutCtx, cmdCtx.UserID, strings.ToLower(fields[0]), fields[1])
	default:
		return userErrorf("Usage: /settings [quality|codec|mode <value>] or /settings reset")
	}
	if err != nil {
		return err
	}

	if _, err := h.messenger.Send(timeoutCtx, cmdCtx.ChatID, cmdCtx.MessageID, reply, nil); err != nil {
		return fmt.Errorf("failed to send settings: %w", err)
	}

	h.logger.Infof("Successfully processed /settings command for user %d (took %v)",
		cmdCtx.UserID, time.Since(startTime))
	return nil
}

func (h *SettingsHandler) updateSetting(ctx context.Context, userID int64, key, value string) (string, error) {
	var apply func(*queue.Settings)

	switch key {
	case "quality", "q":
		q, err := downloader.ParseQuality(value)
		if err != nil {
			return "", userErrorf("Invalid quality %q. Use 0-%d.", value, config.MaxQuality)
		}
		apply = func(s *queue.Settings) { s.Quality = &q }
	case "codec", "c":
		c, err := downloader.ParseCodec(value)
		if err != nil {
			return "", userErrorf("Invalid codec %q. Use one of: %s.", value, strings.Join(config.SupportedCodecs, ", "))
		}
		apply = func(s *queue.Settings) { s.Codec = c }
	case "mode", "m":
		mode, ok := queue.ParseMode(value)
		if !ok {
			return "", userErrorf("Invalid mode %q. Use mirror or leech.", value)
		}
		apply = func(s *queue.Settings) { s.Mode = mode }
	default:
		return "", userErrorf("Unknown setting %q. Use quality, codec or mode.", key)
	}

	settings, err := h.tracker.UpdateSettings(ctx, userID, apply)
	if err != nil {
		return "", err
	}
	return "✅ **Settings updated**\n\n" + h.createSettingsMessage(settings), nil
}

func (h *SettingsHandler) reloadCredentials(userID int64) (string, error) {
	if !h.isOperator(userID) {
		return "", userErrorf("Only operators can reload credentials.")
	}
	if h.reload == nil {
		return "", userErrorf("Credential reload is not available.")
	}
	if err := h.reload(); err != nil {
		return "", fmt.Errorf("failed to reload credentials: %w", err)
	}
	h.logger.Infof("Platform credentials reloaded by user %d", userID)
	return "🔄 **Credentials reloaded**\n\n" + h.createPlatformsMessage(), nil
}

// createSettingsMessage shows the effective settings and where each comes from.
func (h *SettingsHandler) createSettingsMessage(s queue.Settings) string {
	quality := downloader.Quality(h.defaults.DefaultQuality)
	qualitySource := "default"
	if s.Quality != nil {
		quality, qualitySource = *s.Quality, "custom"
	}

	codec := downloader.Codec(h.defaults.DefaultCodec)
	codecSource := "default"
	if s.Codec != "" {
		codec, codecSource = s.Codec, "custom"
	}

	mode := queue.ModeLeech
	modeSource := "default"
	if s.Mode != "" {
		mode, modeSource = s.Mode, "custom"
	}

	var b strings.Builder
	b.WriteString("⚙️ **Your Settings**\n\n")
	fmt.Fprintf(&b, "🎚 **Quality:** %d (%s) • %s\n", quality, quality.Label(), qualitySource)
	fmt.Fprintf(&b, "🎼 **Codec:** %s • %s\n", codec, codecSource)
	fmt.Fprintf(&b, "📦 **Mode:** %s • %s\n", mode, modeSource)
	fmt.Fprintf(&b, "↘️ **Fallback:** %s\n\n", h.fallbackDescription())
	b.WriteString(h.createPlatformsMessage())
	b.WriteString("\n\n💡 `/settings quality 3`, `/settings codec mp3`, `/settings mode mirror`, `/settings reset`")
	return b.String()
}

func (h *SettingsHandler) fallbackDescription() string {
	if !h.defaults.FallbackEnabled {
		return "off"
	}
	order := make([]string, 0, len(h.defaults.FallbackOrder))
	for _, q := range h.defaults.FallbackOrder {
		order = append(order, fmt.Sprint(q))
	}
	return fmt.Sprintf("%s, up to %d steps", strings.Join(order, "→"), h.defaults.MaxFallbackSteps)
}

func (h *SettingsHandler) createPlatformsMessage() string {
	var b strings.Builder
	b.WriteString("🌐 **Platforms:**")
	for _, st := range h.platforms.Statuses() {
		fmt.Fprintf(&b, "\n%s %s: %s", st.Emoji, titleCase(st.Name), describePlatform(st))
	}
	return b.String()
}

func describePlatform(st downloader.PlatformStatus) string {
	switch {
	case !st.Enabled:
		return "disabled"
	case !st.Configured:
		return "not configured"
	case st.AuthFailed != "":
		return "login failed: " + escapeMarkdown(st.AuthFailed)
	default:
		return fmt.Sprintf("ready, up to Q%d", st.MaxQuality)
	}
}
