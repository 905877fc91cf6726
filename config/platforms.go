package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// PlatformCredentials holds the secrets and limits of one streaming service.
type PlatformCredentials struct {
	Enabled    bool `toml:"enabled"`
	MaxQuality int  `toml:"quality"`

	// Qobuz
	Email    string   `toml:"email"`
	Password string   `toml:"password"`
	AppID    string   `toml:"app_id"`
	Secrets  []string `toml:"secrets"`

	// Tidal
	AccessToken  string `toml:"access_token"`
	RefreshToken string `toml:"refresh_token"`
	UserID       string `toml:"user_id"`
	CountryCode  string `toml:"country_code"`

	// Deezer
	ARL string `toml:"arl"`

	// SoundCloud
	ClientID   string `toml:"client_id"`
	AppVersion string `toml:"app_version"`

	// Last.fm
	Source         string `toml:"source"`
	FallbackSource string `toml:"fallback_source"`
}

type platformFile struct {
	Qobuz      PlatformCredentials `toml:"qobuz"`
	Tidal      PlatformCredentials `toml:"tidal"`
	Deezer     PlatformCredentials `toml:"deezer"`
	SoundCloud PlatformCredentials `toml:"soundcloud"`
	LastFM     PlatformCredentials `toml:"lastfm"`
}

func defaultPlatformFile() platformFile {
	return platformFile{
		Qobuz:      PlatformCredentials{Enabled: true, MaxQuality: 3},
		Tidal:      PlatformCredentials{Enabled: true, MaxQuality: 3, CountryCode: "US"},
		Deezer:     PlatformCredentials{Enabled: true, MaxQuality: 2},
		SoundCloud: PlatformCredentials{Enabled: true, MaxQuality: 0},
		LastFM:     PlatformCredentials{Enabled: true, Source: "qobuz"},
	}
}

// Configured reports whether name has the credentials streamrip needs to log in.
func (p PlatformCredentials) Configured(name string) bool {
	if !p.Enabled {
		return false
	}
	switch name {
	case "qobuz":
		return p.Email != "" && p.Password != ""
	case "tidal":
		return p.AccessToken != ""
	case "deezer":
		return p.ARL != ""
	case "soundcloud":
		return true
	case LastFM:
		return p.Source != ""
	}
	return false
}

// LoadPlatforms reads the optional TOML platform file at path and applies
// STREAMRIP_<PLATFORM>_* environment overrides on top of it.
func LoadPlatforms(path string, env *EnvValidator) (map[string]PlatformCredentials, error) {
	file := defaultPlatformFile()

	if path != "" {
		handle, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("platform file %s does not exist", path)
		case err != nil:
			return nil, fmt.Errorf("open platform file: %w", err)
		}
		defer handle.Close()

		if err := toml.NewDecoder(handle).Decode(&file); err != nil {
			return nil, fmt.Errorf("parse platform file: %w", err)
		}
	}

	platforms := map[string]PlatformCredentials{
		"qobuz":      file.Qobuz,
		"tidal":      file.Tidal,
		"deezer":     file.Deezer,
		"soundcloud": file.SoundCloud,
		LastFM:       file.LastFM,
	}

	var errs []error
	for name, creds := range platforms {
		updated, err := applyPlatformEnv(name, creds, env)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		platforms[name] = updated
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return platforms, nil
}

func applyPlatformEnv(name string, creds PlatformCredentials, env *EnvValidator) (PlatformCredentials, error) {
	prefix := "STREAMRIP_" + strings.ToUpper(name) + "_"

	var err error
	if creds.Enabled, err = env.GetBool(prefix+"ENABLED", creds.Enabled); err != nil {
		return creds, err
	}
	if creds.MaxQuality, err = env.GetInt(prefix+"QUALITY", creds.MaxQuality); err != nil {
		return creds, err
	}

	strs := map[string]*string{
		"EMAIL":           &creds.Email,
		"PASSWORD":        &creds.Password,
		"APP_ID":          &creds.AppID,
		"ACCESS_TOKEN":    &creds.AccessToken,
		"REFRESH_TOKEN":   &creds.RefreshToken,
		"USER_ID":         &creds.UserID,
		"COUNTRY_CODE":    &creds.CountryCode,
		"ARL":             &creds.ARL,
		"CLIENT_ID":       &creds.ClientID,
		"APP_VERSION":     &creds.AppVersion,
		"SOURCE":          &creds.Source,
		"FALLBACK_SOURCE": &creds.FallbackSource,
	}
	for suffix, field := range strs {
		*field = env.GetString(prefix+suffix, *field)
	}
	if secrets := env.GetStringList(prefix + "SECRETS"); len(secrets) > 0 {
		creds.Secrets = secrets
	}

	return creds, nil
}
