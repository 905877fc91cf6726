package downloader

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"go-streamrip-bot/config"
)

type ripDownloads struct {
	Folder            string `toml:"folder"`
	Concurrency       bool   `toml:"concurrency"`
	MaxConnections    int    `toml:"max_connections"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
}

type ripQobuz struct {
	Quality         int      `toml:"quality"`
	UseAuthToken    bool     `toml:"use_auth_token"`
	EmailOrUserID   string   `toml:"email_or_userid"`
	PasswordOrToken string   `toml:"password_or_token"`
	AppID           string   `toml:"app_id"`
	Secrets         []string `toml:"secrets"`
}

type ripTidal struct {
	Quality      int    `toml:"quality"`
	UserID       string `toml:"user_id"`
	CountryCode  string `toml:"country_code"`
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
}

type ripDeezer struct {
	Quality        int    `toml:"quality"`
	ARL            string `toml:"arl"`
	UseDeezloader  bool   `toml:"use_deezloader"`
	DeezloaderWarn bool   `toml:"deezloader_warnings"`
}

type ripSoundCloud struct {
	Quality    int    `toml:"quality"`
	ClientID   string `toml:"client_id"`
	AppVersion string `toml:"app_version"`
}

type ripLastFM struct {
	Source         string `toml:"source"`
	FallbackSource string `toml:"fallback_source"`
}

type ripDatabase struct {
	DownloadsEnabled       bool `toml:"downloads_enabled"`
	FailedDownloadsEnabled bool `toml:"failed_downloads_enabled"`
}

type ripFile struct {
	Downloads  ripDownloads  `toml:"downloads"`
	Qobuz      ripQobuz      `toml:"qobuz"`
	Tidal      ripTidal      `toml:"tidal"`
	Deezer     ripDeezer     `toml:"deezer"`
	SoundCloud ripSoundCloud `toml:"soundcloud"`
	LastFM     ripLastFM     `toml:"lastfm"`
	Database   ripDatabase   `toml:"database"`
}

// WriteRipConfig renders the credentials and limits the bot was configured
// with into a streamrip config file at path.
func WriteRipConfig(path, downloadDir string, cfg config.StreamripConfig, creds map[string]config.PlatformCredentials) error {
	qobuz := creds["qobuz"]
	tidal := creds["tidal"]
	deezer := creds["deezer"]
	soundcloud := creds["soundcloud"]
	lastfm := creds[config.LastFM]

	file := ripFile{
		Downloads: ripDownloads{
			Folder:            downloadDir,
			Concurrency:       cfg.ConcurrentDownloads > 1,
			MaxConnections:    cfg.ConcurrentDownloads,
			RequestsPerMinute: cfg.RequestsPerMinute,
		},
		Qobuz: ripQobuz{
			Quality:         qobuz.MaxQuality,
			EmailOrUserID:   qobuz.Email,
			PasswordOrToken: qobuz.Password,
			AppID:           qobuz.AppID,
			Secrets:         qobuz.Secrets,
		},
		Tidal: ripTidal{
			Quality:      tidal.MaxQuality,
			UserID:       tidal.UserID,
			CountryCode:  tidal.CountryCode,
			AccessToken:  tidal.AccessToken,
			RefreshToken: tidal.RefreshToken,
		},
		Deezer: ripDeezer{
			Quality:       deezer.MaxQuality,
			ARL:           deezer.ARL,
			UseDeezloader: deezer.ARL == "",
		},
		SoundCloud: ripSoundCloud{
			Quality:    soundcloud.MaxQuality,
			ClientID:   soundcloud.ClientID,
			AppVersion: soundcloud.AppVersion,
		},
		LastFM: ripLastFM{
			Source:         lastfm.Source,
			FallbackSource: lastfm.FallbackSource,
		},
	}
	if file.Qobuz.Secrets == nil {
		file.Qobuz.Secrets = []string{}
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode streamrip config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create streamrip config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write streamrip config: %w", err)
	}
	return nil
}
