package mexc

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	cfg := DefaultBackoffConfig()

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"first attempt", 0, time.Second},
		{"second attempt", 1, 2 * time.Second},
		{"fourth attempt", 3, 8 * time.Second},
		{"fifth attempt", 4, 16 * time.Second},
		{"capped at max", 5, 30 * time.Second},
		{"stays capped", 10, 30 * time.Second},
		{"far past the cap", 100, 30 * time.Second},
		{"negative clamped to zero", -1, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BackoffDelay(tt.attempt, cfg); got != tt.want {
				t.Errorf("BackoffDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffDelayCustomConfig(t *testing.T) {
	cfg := BackoffConfig{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   3,
	}

	if got := BackoffDelay(0, cfg); got != 500*time.Millisecond {
		t.Errorf("BackoffDelay(0) = %v, want 500ms", got)
	}
	if got := BackoffDelay(1, cfg); got != 1500*time.Millisecond {
		t.Errorf("BackoffDelay(1) = %v, want 1.5s", got)
	}
	if got := BackoffDelay(4, cfg); got != 5*time.Second {
		t.Errorf("BackoffDelay(4) = %v, want capped 5s", got)
	}
}
