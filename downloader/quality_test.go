package downloader

import (
	"reflect"
	"testing"

	"go-streamrip-bot/config"
)

func TestParseQuality(t *testing.T) {
	tests := []struct {
		input       string
		expected    Quality
		expectError bool
	}{
		{"0", 0, false},
		{" 4 ", 4, false},
		{"5", 0, true},
		{"-1", 0, true},
		{"hi", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			q, err := ParseQuality(tt.input)
			if (err != nil) != tt.expectError {
				t.Fatalf("ParseQuality(%q) error = %v, expectError %v", tt.input, err, tt.expectError)
			}
			if !tt.expectError && q != tt.expected {
				t.Errorf("ParseQuality(%q) = %d, want %d", tt.input, q, tt.expected)
			}
		})
	}
}

func TestParseCodec(t *testing.T) {
	if c, err := ParseCodec("FLAC"); err != nil || c != "flac" {
		t.Errorf("ParseCodec(FLAC) = %q, %v", c, err)
	}
	if _, err := ParseCodec("wav"); err == nil {
		t.Errorf("expected error for wav")
	}
}

func TestFallbackPolicy(t *testing.T) {
	defaultPolicy := NewFallbackPolicy(config.StreamripConfig{
		FallbackEnabled:  true,
		FallbackOrder:    []int{4, 3, 2, 1, 0},
		MaxFallbackSteps: 1,
	})

	tests := []struct {
		name      string
		policy    FallbackPolicy
		requested Quality
		expected  []Quality
	}{
		{"one step from 4", defaultPolicy, 4, []Quality{4, 3}},
		{"one step from 1", defaultPolicy, 1, []Quality{1, 0}},
		{"lowest has no fallback", defaultPolicy, 0, []Quality{0}},
		{
			name:      "disabled",
			policy:    FallbackPolicy{Enabled: false, Order: []Quality{4, 3}, MaxSteps: 1},
			requested: 4,
			expected:  []Quality{4},
		},
		{
			name:      "two steps",
			policy:    FallbackPolicy{Enabled: true, Order: []Quality{4, 3, 2}, MaxSteps: 2},
			requested: 4,
			expected:  []Quality{4, 3, 2},
		},
		{
			name:      "custom order skips levels",
			policy:    FallbackPolicy{Enabled: true, Order: []Quality{4, 2, 0}, MaxSteps: 1},
			requested: 4,
			expected:  []Quality{4, 2},
		},
		{
			name:      "unlisted quality uses next lower entry",
			policy:    FallbackPolicy{Enabled: true, Order: []Quality{4, 2, 0}, MaxSteps: 1},
			requested: 3,
			expected:  []Quality{3, 2},
		},
		{
			name:      "never steps up",
			policy:    FallbackPolicy{Enabled: true, Order: []Quality{4, 2, 3, 1, 0}, MaxSteps: 1},
			requested: 2,
			expected:  []Quality{2, 1},
		},
		{
			name:      "last entry has no fallback",
			policy:    FallbackPolicy{Enabled: true, Order: []Quality{4, 1, 2}, MaxSteps: 1},
			requested: 2,
			expected:  []Quality{2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.Attempts(tt.requested)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Attempts(%d) = %v, want %v", tt.requested, got, tt.expected)
			}
		})
	}
}

func TestQualityLabel(t *testing.T) {
	if Quality(2).Label() != "CD 16-bit/44.1kHz" {
		t.Errorf("unexpected label for 2: %s", Quality(2).Label())
	}
	if Quality(9).Label() != "unknown" {
		t.Errorf("unexpected label for 9: %s", Quality(9).Label())
	}
}
