package downloader

import (
	"fmt"
	"strconv"
	"strings"

	"go-streamrip-bot/config"
)

// Quality is a streamrip quality level, 0 (lowest) to 4 (Hi-Res+).
type Quality int

// Valid reports whether q is a level streamrip understands.
func (q Quality) Valid() bool {
	return q >= 0 && q <= config.MaxQuality
}

// Label returns a short human description of the level.
func (q Quality) Label() string {
	switch q {
	case 0:
		return "128 kbps"
	case 1:
		return "320 kbps"
	case 2:
		return "CD 16-bit/44.1kHz"
	case 3:
		return "Hi-Res 24-bit/96kHz"
	case 4:
		return "Hi-Res+ 24-bit/192kHz"
	default:
		return "unknown"
	}
}

// ParseQuality parses a quality flag value.
func ParseQuality(s string) (Quality, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !Quality(n).Valid() {
		return 0, fmt.Errorf("quality must be a number between 0 and %d, got %q", config.MaxQuality, s)
	}
	return Quality(n), nil
}

// Codec is an output format streamrip can convert to.
type Codec string

// ParseCodec parses a codec flag value.
func ParseCodec(s string) (Codec, error) {
	c := strings.ToLower(strings.TrimSpace(s))
	if !config.IsSupportedCodec(c) {
		return "", fmt.Errorf("codec must be one of %s, got %q", strings.Join(config.SupportedCodecs, ", "), s)
	}
	return Codec(c), nil
}

// FallbackPolicy decides which quality to try after QualityUnavailable.
type FallbackPolicy struct {
	Enabled  bool
	Order    []Quality
	MaxSteps int
}

// NewFallbackPolicy builds the policy described by cfg.
func NewFallbackPolicy(cfg config.StreamripConfig) FallbackPolicy {
	order := make([]Quality, 0, len(cfg.FallbackOrder))
	for _, q := range cfg.FallbackOrder {
		order = append(order, Quality(q))
	}
	return FallbackPolicy{
		Enabled:  cfg.FallbackEnabled,
		Order:    order,
		MaxSteps: cfg.MaxFallbackSteps,
	}
}

// Next returns the first entry after q in the ordering that is lower than q.
// When q is not listed the first listed quality below q is used.
func (p FallbackPolicy) Next(q Quality) (Quality, bool) {
	if !p.Enabled {
		return 0, false
	}
	rest := p.Order
	for i, candidate := range p.Order {
		if candidate == q {
			rest = p.Order[i+1:]
			break
		}
	}
	for _, candidate := range rest {
		if candidate < q {
			return candidate, true
		}
	}
	return 0, false
}

// Attempts returns the qualities to try in order, starting with requested.
func (p FallbackPolicy) Attempts(requested Quality) []Quality {
	attempts := []Quality{requested}
	current := requested
	for step := 0; step < p.MaxSteps; step++ {
		next, ok := p.Next(current)
		if !ok {
			break
		}
		attempts = append(attempts, next)
		current = next
	}
	return attempts
}
