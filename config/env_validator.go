package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// EnvValidator handles validation of required environment variables
// and typed lookups of optional ones.
type EnvValidator struct{}

// NewEnvValidator creates a new environment validator instance
func NewEnvValidator() *EnvValidator {
	return &EnvValidator{}
}

// ValidateRequired validates that all required environment variables are present
// Returns an error if any required variables are missing
func (e *EnvValidator) ValidateRequired() error {
	requiredVars := []string{"BOT_TOKEN", "API_ID", "API_HASH"}

	var missingVars []string
	for _, varName := range requiredVars {
		if value := os.Getenv(varName); value == "" {
			missingVars = append(missingVars, varName)
		}
	}

	if len(missingVars) > 0 {
		return fmt.Errorf("missing required environment variables: %v. Please set these variables in your .env file or environment", missingVars)
	}

	if _, _, err := e.GetAPICredentials(); err != nil {
		return fmt.Errorf("invalid API_ID: %w", err)
	}

	return nil
}

// GetBotToken returns the bot token from environment variables
func (e *EnvValidator) GetBotToken() string {
	return os.Getenv("BOT_TOKEN")
}

// GetAPICredentials returns the API ID and API Hash from environment variables
// Returns an error if API_ID cannot be converted to integer
func (e *EnvValidator) GetAPICredentials() (apiID int, apiHash string, err error) {
	apiIDStr := os.Getenv("API_ID")
	apiHash = os.Getenv("API_HASH")

	if apiIDStr == "" {
		return 0, "", fmt.Errorf("API_ID environment variable is not set")
	}

	if apiHash == "" {
		return 0, "", fmt.Errorf("API_HASH environment variable is not set")
	}

	apiID, err = strconv.Atoi(apiIDStr)
	if err != nil {
		return 0, "", fmt.Errorf("API_ID must be a valid integer, got: %s", apiIDStr)
	}

	return apiID, apiHash, nil
}

// Lookup returns the trimmed value of key and whether it was set to something non-empty.
func (e *EnvValidator) Lookup(key string) (string, bool) {
	value := strings.TrimSpace(os.Getenv(key))
	return value, value != ""
}

// GetString returns the value of key or def when unset.
func (e *EnvValidator) GetString(key, def string) string {
	if value, ok := e.Lookup(key); ok {
		return value
	}
	return def
}

// GetInt returns key parsed as an int, or def when unset.
func (e *EnvValidator) GetInt(key string, def int) (int, error) {
	value, ok := e.Lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def, fmt.Errorf("%s must be a valid integer, got: %s", key, value)
	}
	return n, nil
}

// GetInt64 returns key parsed as an int64, or def when unset.
func (e *EnvValidator) GetInt64(key string, def int64) (int64, error) {
	value, ok := e.Lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def, fmt.Errorf("%s must be a valid integer, got: %s", key, value)
	}
	return n, nil
}

// GetFloat returns key parsed as a float64, or def when unset.
func (e *EnvValidator) GetFloat(key string, def float64) (float64, error) {
	value, ok := e.Lookup(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def, fmt.Errorf("%s must be a number, got: %s", key, value)
	}
	return f, nil
}

// GetBool accepts true/false, yes/no, on/off and 1/0.
func (e *EnvValidator) GetBool(key string, def bool) (bool, error) {
	value, ok := e.Lookup(key)
	if !ok {
		return def, nil
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return def, fmt.Errorf("%s must be a boolean, got: %s", key, value)
}

// GetInt64List parses a space or comma separated list of ids.
func (e *EnvValidator) GetInt64List(key string) ([]int64, error) {
	value, ok := e.Lookup(key)
	if !ok {
		return nil, nil
	}
	var ids []int64
	for _, field := range splitList(value) {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s contains an invalid id: %s", key, field)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetIntList parses a space or comma separated list of integers, or returns def when unset.
func (e *EnvValidator) GetIntList(key string, def []int) ([]int, error) {
	value, ok := e.Lookup(key)
	if !ok {
		return def, nil
	}
	var values []int
	for _, field := range splitList(value) {
		n, err := strconv.Atoi(field)
		if err != nil {
			return def, fmt.Errorf("%s contains an invalid integer: %s", key, field)
		}
		values = append(values, n)
	}
	return values, nil
}

// GetStringList parses a space or comma separated list of strings.
func (e *EnvValidator) GetStringList(key string) []string {
	value, ok := e.Lookup(key)
	if !ok {
		return nil
	}
	return splitList(value)
}

func splitList(value string) []string {
	return strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}
