package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEnvValidator_ValidateRequired(t *testing.T) {
	tests := []struct {
		name        string
		envVars     map[string]string
		expectError bool
		errorMsg    string
	}{
		{
			name:        "all required variables present",
			envVars:     requiredEnv(),
			expectError: false,
		},
		{
			name: "missing BOT_TOKEN",
			envVars: map[string]string{
				"API_ID":   "12345",
				"API_HASH": "abcdef123456",
			},
			expectError: true,
			errorMsg:    "missing required environment variables: [BOT_TOKEN]",
		},
		{
			name:        "missing all variables",
			envVars:     map[string]string{},
			expectError: true,
			errorMsg:    "missing required environment variables: [BOT_TOKEN API_ID API_HASH]",
		},
		{
			name: "invalid API_ID",
			envVars: map[string]string{
				"BOT_TOKEN": "token",
				"API_ID":    "12a45",
				"API_HASH":  "abcdef123456",
			},
			expectError: true,
			errorMsg:    "invalid API_ID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnv(tt.envVars)

			err := NewEnvValidator().ValidateRequired()

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
					return
				}
				if tt.errorMsg != "" && !strings.HasPrefix(err.Error(), tt.errorMsg) {
					t.Errorf("expected error message to start with %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error but got: %v", err)
			}
		})
	}
}

func TestEnvValidator_TypedGetters(t *testing.T) {
	setEnv(map[string]string{
		"INT_OK":    " 7 ",
		"INT_BAD":   "seven",
		"BOOL_YES":  "yes",
		"BOOL_OFF":  "OFF",
		"BOOL_BAD":  "maybe",
		"FLOAT_OK":  "2.5",
		"IDS":       "1,2  -1003",
		"INTS":      "4 3,2",
		"WORDS":     "a, b c",
		"EMPTY_VAR": "   ",
	})
	v := NewEnvValidator()

	if n, err := v.GetInt("INT_OK", 0); err != nil || n != 7 {
		t.Errorf("GetInt(INT_OK) = %d, %v", n, err)
	}
	if n, err := v.GetInt("INT_BAD", 3); err == nil || n != 3 {
		t.Errorf("GetInt(INT_BAD) = %d, %v; want default and error", n, err)
	}
	if n, err := v.GetInt("UNSET", 11); err != nil || n != 11 {
		t.Errorf("GetInt(UNSET) = %d, %v", n, err)
	}
	if b, err := v.GetBool("BOOL_YES", false); err != nil || !b {
		t.Errorf("GetBool(BOOL_YES) = %v, %v", b, err)
	}
	if b, err := v.GetBool("BOOL_OFF", true); err != nil || b {
		t.Errorf("GetBool(BOOL_OFF) = %v, %v", b, err)
	}
	if _, err := v.GetBool("BOOL_BAD", true); err == nil {
		t.Errorf("expected error for BOOL_BAD")
	}
	if f, err := v.GetFloat("FLOAT_OK", 0); err != nil || f != 2.5 {
		t.Errorf("GetFloat(FLOAT_OK) = %v, %v", f, err)
	}
	if ids, err := v.GetInt64List("IDS"); err != nil || len(ids) != 3 || ids[2] != -1003 {
		t.Errorf("GetInt64List(IDS) = %v, %v", ids, err)
	}
	if ints, err := v.GetIntList("INTS", nil); err != nil || len(ints) != 3 || ints[0] != 4 {
		t.Errorf("GetIntList(INTS) = %v, %v", ints, err)
	}
	if words := v.GetStringList("WORDS"); len(words) != 3 {
		t.Errorf("GetStringList(WORDS) = %v", words)
	}
	if s := v.GetString("EMPTY_VAR", "fallback"); s != "fallback" {
		t.Errorf("GetString(EMPTY_VAR) = %q, want fallback", s)
	}
}

func TestLoadPlatforms(t *testing.T) {
	setEnv(map[string]string{
		"STREAMRIP_DEEZER_ARL":     "from-env",
		"STREAMRIP_TIDAL_ENABLED":  "false",
		"STREAMRIP_QOBUZ_SECRETS":  "s1,s2",
		"STREAMRIP_QOBUZ_PASSWORD": "env-pass",
		"STREAMRIP_LASTFM_SOURCE":  "deezer",
	})

	path := filepath.Join(t.TempDir(), "platforms.toml")
	content := `
[qobuz]
enabled = true
quality = 4
email = "user@example.com"
password = "file-pass"

[deezer]
enabled = true
quality = 2
arl = "from-file"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write platform file: %v", err)
	}

	platforms, err := LoadPlatforms(path, NewEnvValidator())
	if err != nil {
		t.Fatalf("LoadPlatforms() error = %v", err)
	}

	qobuz := platforms["qobuz"]
	if qobuz.MaxQuality != 4 || qobuz.Email != "user@example.com" {
		t.Errorf("file values not applied to qobuz: %+v", qobuz)
	}
	if qobuz.Password != "env-pass" {
		t.Errorf("expected env to override password, got %q", qobuz.Password)
	}
	if len(qobuz.Secrets) != 2 {
		t.Errorf("expected two secrets, got %v", qobuz.Secrets)
	}
	if platforms["deezer"].ARL != "from-env" {
		t.Errorf("expected env ARL, got %q", platforms["deezer"].ARL)
	}
	if !platforms["qobuz"].Configured("qobuz") || !platforms["deezer"].Configured("deezer") {
		t.Errorf("expected qobuz and deezer to be configured")
	}
	if platforms["tidal"].Configured("tidal") {
		t.Errorf("expected disabled tidal to be unconfigured")
	}
	if !platforms["soundcloud"].Configured("soundcloud") {
		t.Errorf("expected soundcloud to need no credentials")
	}
	if lastfm := platforms[LastFM]; !lastfm.Enabled || lastfm.Source != "deezer" || !lastfm.Configured(LastFM) {
		t.Errorf("expected lastfm enabled with the env source, got %+v", lastfm)
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("[qobuz\n"), 0o600); err != nil {
		t.Fatalf("write bad platform file: %v", err)
	}
	if _, err := LoadPlatforms(bad, NewEnvValidator()); err == nil {
		t.Errorf("expected parse error for malformed file")
	}
}
