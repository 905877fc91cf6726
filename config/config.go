package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// MaxQuality is the highest streamrip quality level (Hi-Res+).
	MaxQuality = 4

	// TelegramMaxUpload is the largest document a bot account may send.
	TelegramMaxUpload int64 = 2000 * 1024 * 1024

	minStatusInterval = 2 * time.Second
)

// SupportedCodecs lists the output formats streamrip can convert to.
var SupportedCodecs = []string{"flac", "mp3", "m4a", "ogg", "opus"}

// PlatformNames lists every streaming service the bot knows about, in display order.
var PlatformNames = []string{"qobuz", "tidal", "deezer", "soundcloud"}

// LastFM names the Last.fm playlist converter. It is not a streaming
// service: streamrip matches each playlist entry on a source platform.
const LastFM = "lastfm"

// BotConfig holds all configuration values for the Telegram bot
type BotConfig struct {
	Token    string // Telegram bot token
	APIID    int    // Telegram API ID
	APIHash  string // Telegram API Hash
	LogLevel string // Logging level (DEBUG, INFO, WARN, ERROR, FATAL)
	LogFile  string // Human-readable lifecycle log

	SessionFile string // gotgproto session database

	OwnerID         int64   // Bot operator
	SudoUsers       []int64 // Users with operator rights
	AuthorizedChats []int64 // Empty means every chat may use the bot
	CmdSuffix       string  // Appended to every command name

	DownloadDir    string
	MirrorDir      string
	LeechSplitSize int64

	Streamrip StreamripConfig
	Limits    LimitsConfig
	Status    StatusConfig

	// Platforms is keyed by lowercase platform name. Read-only after load.
	Platforms map[string]PlatformCredentials
}

// StreamripConfig controls how the rip CLI is driven.
type StreamripConfig struct {
	Binary              string
	ConfigFile          string // bot's TOML platform file
	RipConfigPath       string // streamrip config rendered from the platform settings
	ConcurrentDownloads int
	DefaultQuality      int
	DefaultCodec        string
	FallbackEnabled     bool
	FallbackOrder       []int
	MaxFallbackSteps    int
	MaxRetries          int
	MaxSearchResults    int
	RequestsPerMinute   int
	EnableDatabase      bool
	DatabasePath        string
}

// LimitsConfig holds admission limits. Zero means unlimited.
type LimitsConfig struct {
	UserMaxTasks   int
	BotMaxTasks    int
	DailyTaskLimit int
	SizeLimitBytes int64
}

// StatusConfig controls status message refreshes.
type StatusConfig struct {
	UpdateInterval time.Duration
	Limit          int
}

// LoadConfig loads and validates the bot configuration from environment variables.
// envFiles are passed to godotenv; with none, a .env in the working directory is tried.
func LoadConfig(envFiles ...string) (*BotConfig, error) {
	if err := godotenv.Load(envFiles...); err != nil && len(envFiles) > 0 {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	validator := NewEnvValidator()

	if err := validator.ValidateRequired(); err != nil {
		return nil, fmt.Errorf("environment validation failed: %w", err)
	}

	apiID, apiHash, err := validator.GetAPICredentials()
	if err != nil {
		return nil, fmt.Errorf("failed to get API credentials: %w", err)
	}

	token := validator.GetBotToken()
	if token == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required but not set")
	}

	cfg := &BotConfig{
		Token:       token,
		APIID:       apiID,
		APIHash:     apiHash,
		LogLevel:    strings.ToUpper(validator.GetString("LOG_LEVEL", "INFO")),
		LogFile:     validator.GetString("LOG_FILE", "streamrip_bot.log"),
		SessionFile: validator.GetString("SESSION_FILE", "bot_session.db"),
		CmdSuffix:   validator.GetString("CMD_SUFFIX", ""),
		DownloadDir: validator.GetString("DOWNLOAD_DIR", "downloads"),
		MirrorDir:   validator.GetString("MIRROR_DIR", "mirror"),
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg.OwnerID, err = validator.GetInt64("OWNER_ID", 0)
	collect(err)
	cfg.SudoUsers, err = validator.GetInt64List("SUDO_USERS")
	collect(err)
	cfg.AuthorizedChats, err = validator.GetInt64List("AUTHORIZED_CHATS")
	collect(err)
	cfg.LeechSplitSize, err = validator.GetInt64("LEECH_SPLIT_SIZE", 0)
	collect(err)
	if cfg.LeechSplitSize == 0 {
		cfg.LeechSplitSize = TelegramMaxUpload
	}

	sr := StreamripConfig{
		Binary:        validator.GetString("STREAMRIP_BINARY", "rip"),
		ConfigFile:    validator.GetString("STREAMRIP_CONFIG_FILE", ""),
		RipConfigPath: validator.GetString("STREAMRIP_RIP_CONFIG", ""),
		DefaultCodec:  strings.ToLower(validator.GetString("STREAMRIP_DEFAULT_CODEC", "flac")),
		DatabasePath:  validator.GetString("STREAMRIP_DATABASE_PATH", "downloads.db"),
	}
	sr.ConcurrentDownloads, err = validator.GetInt("STREAMRIP_CONCURRENT_DOWNLOADS", 4)
	collect(err)
	sr.DefaultQuality, err = validator.GetInt("STREAMRIP_DEFAULT_QUALITY", 3)
	collect(err)
	sr.FallbackEnabled, err = validator.GetBool("STREAMRIP_QUALITY_FALLBACK_ENABLED", true)
	collect(err)
	sr.FallbackOrder, err = validator.GetIntList("STREAMRIP_FALLBACK_ORDER", []int{4, 3, 2, 1, 0})
	collect(err)
	sr.MaxFallbackSteps, err = validator.GetInt("STREAMRIP_MAX_FALLBACK_STEPS", 1)
	collect(err)
	sr.MaxRetries, err = validator.GetInt("STREAMRIP_MAX_RETRIES", 3)
	collect(err)
	sr.MaxSearchResults, err = validator.GetInt("STREAMRIP_MAX_SEARCH_RESULTS", 20)
	collect(err)
	sr.RequestsPerMinute, err = validator.GetInt("STREAMRIP_REQUESTS_PER_MINUTE", 60)
	collect(err)
	sr.EnableDatabase, err = validator.GetBool("STREAMRIP_ENABLE_DATABASE", true)
	collect(err)
	cfg.Streamrip = sr

	cfg.Limits.UserMaxTasks, err = validator.GetInt("USER_MAX_TASKS", 0)
	collect(err)
	cfg.Limits.BotMaxTasks, err = validator.GetInt("BOT_MAX_TASKS", 0)
	collect(err)
	cfg.Limits.DailyTaskLimit, err = validator.GetInt("DAILY_TASK_LIMIT", 0)
	collect(err)
	sizeLimitGB, err := validator.GetFloat("STREAMRIP_LIMIT", 0)
	collect(err)
	cfg.Limits.SizeLimitBytes = int64(sizeLimitGB * 1024 * 1024 * 1024)

	intervalSeconds, err := validator.GetInt("STATUS_UPDATE_INTERVAL", 3)
	collect(err)
	cfg.Status.UpdateInterval = time.Duration(intervalSeconds) * time.Second
	cfg.Status.Limit, err = validator.GetInt("STATUS_LIMIT", 10)
	collect(err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed: %w", errors.Join(errs...))
	}

	platforms, err := LoadPlatforms(sr.ConfigFile, validator)
	if err != nil {
		return nil, fmt.Errorf("failed to load platform credentials: %w", err)
	}
	cfg.Platforms = platforms

	return cfg, nil
}

// Validate performs additional validation on the loaded configuration
func (c *BotConfig) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("bot token cannot be empty")
	}

	if c.APIID <= 0 {
		return fmt.Errorf("API ID must be a positive integer, got: %d", c.APIID)
	}

	if c.APIHash == "" {
		return fmt.Errorf("API hash cannot be empty")
	}

	validLogLevels := map[string]bool{
		"DEBUG": true,
		"INFO":  true,
		"WARN":  true,
		"ERROR": true,
		"FATAL": true,
	}

	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s. Valid levels are: DEBUG, INFO, WARN, ERROR, FATAL", c.LogLevel)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}

	if c.LeechSplitSize < 0 || c.LeechSplitSize > TelegramMaxUpload {
		return fmt.Errorf("leech split size must be between 1 and %d bytes, got: %d", TelegramMaxUpload, c.LeechSplitSize)
	}

	if err := c.Streamrip.validate(); err != nil {
		return err
	}

	if c.Limits.UserMaxTasks < 0 || c.Limits.BotMaxTasks < 0 || c.Limits.DailyTaskLimit < 0 || c.Limits.SizeLimitBytes < 0 {
		return fmt.Errorf("task limits cannot be negative")
	}

	if c.Status.UpdateInterval < minStatusInterval {
		return fmt.Errorf("status update interval must be at least %s, got: %s", minStatusInterval, c.Status.UpdateInterval)
	}

	if c.Status.Limit <= 0 {
		return fmt.Errorf("status limit must be positive, got: %d", c.Status.Limit)
	}

	for name, creds := range c.Platforms {
		if creds.MaxQuality < 0 || creds.MaxQuality > MaxQuality {
			return fmt.Errorf("%s quality must be between 0 and %d, got: %d", name, MaxQuality, creds.MaxQuality)
		}
	}

	if lastfm := c.Platforms[LastFM]; lastfm.Enabled {
		if !isStreamingPlatform(lastfm.Source) {
			return fmt.Errorf("lastfm source must be one of %s, got: %q", strings.Join(PlatformNames, ", "), lastfm.Source)
		}
		if lastfm.FallbackSource != "" && (!isStreamingPlatform(lastfm.FallbackSource) || lastfm.FallbackSource == lastfm.Source) {
			return fmt.Errorf("lastfm fallback source must be another of %s, got: %q", strings.Join(PlatformNames, ", "), lastfm.FallbackSource)
		}
	}

	return nil
}

func (s StreamripConfig) validate() error {
	if s.Binary == "" {
		return fmt.Errorf("streamrip binary cannot be empty")
	}

	if s.ConcurrentDownloads < 1 {
		return fmt.Errorf("concurrent downloads must be at least 1, got: %d", s.ConcurrentDownloads)
	}

	if s.DefaultQuality < 0 || s.DefaultQuality > MaxQuality {
		return fmt.Errorf("default quality must be between 0 and %d, got: %d", MaxQuality, s.DefaultQuality)
	}

	if !IsSupportedCodec(s.DefaultCodec) {
		return fmt.Errorf("unsupported default codec: %s. Supported codecs are: %s", s.DefaultCodec, strings.Join(SupportedCodecs, ", "))
	}

	for i, q := range s.FallbackOrder {
		if q < 0 || q > MaxQuality {
			return fmt.Errorf("fallback order contains invalid quality: %d", q)
		}
		if i > 0 && q >= s.FallbackOrder[i-1] {
			return fmt.Errorf("fallback order must be strictly descending, got %d after %d", q, s.FallbackOrder[i-1])
		}
	}

	if s.MaxFallbackSteps < 0 || s.MaxRetries < 0 {
		return fmt.Errorf("fallback steps and retries cannot be negative")
	}

	if s.MaxSearchResults < 1 {
		return fmt.Errorf("max search results must be at least 1, got: %d", s.MaxSearchResults)
	}

	if s.RequestsPerMinute < 1 {
		return fmt.Errorf("requests per minute must be at least 1, got: %d", s.RequestsPerMinute)
	}

	return nil
}

// IsSupportedCodec reports whether codec is one of SupportedCodecs.
func IsSupportedCodec(codec string) bool {
	for _, c := range SupportedCodecs {
		if c == codec {
			return true
		}
	}
	return false
}

// IsOperator reports whether userID is the owner or a sudo user.
func (c *BotConfig) IsOperator(userID int64) bool {
	if c.OwnerID != 0 && userID == c.OwnerID {
		return true
	}
	for _, id := range c.SudoUsers {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAuthorizedChat reports whether the bot may be used in chatID.
// Operators are always allowed.
func (c *BotConfig) IsAuthorizedChat(chatID, userID int64) bool {
	if len(c.AuthorizedChats) == 0 || c.IsOperator(userID) {
		return true
	}
	for _, id := range c.AuthorizedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

// EnsureDirectories creates the download and mirror directories.
func (c *BotConfig) EnsureDirectories() error {
	for _, dir := range []string{c.DownloadDir, c.MirrorDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func isStreamingPlatform(name string) bool {
	for _, p := range PlatformNames {
		if p == name {
			return true
		}
	}
	return false
}
