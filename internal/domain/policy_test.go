package domain

import (
	"errors"
	"testing"
)

func TestDecideModeThresholdBoundaries(t *testing.T) {
	thresholds := Thresholds{DirectMax: 30, OptionalMax: 100}

	tests := []struct {
		name   string
		amount int64
		want   SettlementMode
	}{
		{name: "well below direct max", amount: 1, want: ModeDirect},
		{name: "exactly direct max", amount: 30, want: ModeDirect},
		{name: "just above direct max", amount: 31, want: ModeOptional},
		{name: "exactly optional max", amount: 100, want: ModeOptional},
		{name: "just above optional max", amount: 101, want: ModeMandatory},
		{name: "far above optional max", amount: 1_000_000, want: ModeMandatory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecideMode(tt.amount, thresholds)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected mode=%s for amount %d, got %s", tt.want, tt.amount, got)
			}
		})
	}
}

func TestDecideModeMonotonicInAmount(t *testing.T) {
	thresholds := Thresholds{DirectMax: 30, OptionalMax: 100}

	prev := ModeDirect
	for amount := int64(1); amount <= 200; amount++ {
		mode, err := DecideMode(amount, thresholds)
		if err != nil {
			t.Fatalf("expected no error for amount %d, got %v", amount, err)
		}
		if prev.MoreProtectiveThan(mode) {
			t.Fatalf("protection regressed at amount %d: %s after %s", amount, mode, prev)
		}
		prev = mode
	}
}

func TestDecideModeRejectsNonPositiveAmounts(t *testing.T) {
	thresholds := Thresholds{DirectMax: 30, OptionalMax: 100}

	for _, amount := range []int64{0, -1, -500} {
		if _, err := DecideMode(amount, thresholds); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("expected ErrInvalidAmount for amount %d, got %v", amount, err)
		}
	}
}

func TestDecideModeRejectsMalformedThresholds(t *testing.T) {
	tests := []struct {
		name       string
		thresholds Thresholds
	}{
		{name: "negative direct max", thresholds: Thresholds{DirectMax: -1, OptionalMax: 100}},
		{name: "equal thresholds", thresholds: Thresholds{DirectMax: 50, OptionalMax: 50}},
		{name: "inverted thresholds", thresholds: Thresholds{DirectMax: 100, OptionalMax: 30}},
		{name: "zero optional max", thresholds: Thresholds{DirectMax: 0, OptionalMax: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecideMode(10, tt.thresholds); !errors.Is(err, ErrInvalidThresholds) {
				t.Fatalf("expected ErrInvalidThresholds, got %v", err)
			}
		})
	}
}

func TestDecideModeIsDeterministic(t *testing.T) {
	thresholds := Thresholds{DirectMax: 30, OptionalMax: 100}

	first, err := DecideMode(65, thresholds)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	for i := 0; i < 100; i++ {
		again, err := DecideMode(65, thresholds)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if again != first {
			t.Fatalf("expected stable decision %s, got %s on run %d", first, again, i)
		}
	}
}
