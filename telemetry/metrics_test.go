package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInitIdempotent(t *testing.T) {
	// Double Init must not re-register collectors (promauto panics on
	// duplicate registration).
	Init()
	Init()

	if CapturesStarted == nil {
		t.Error("CapturesStarted counter not initialized")
	}
	if CheckErrors == nil {
		t.Error("CheckErrors counter vec not initialized")
	}
	if CheckDuration == nil {
		t.Error("CheckDuration histogram not initialized")
	}
	if CaptureDuration == nil {
		t.Error("CaptureDuration histogram not initialized")
	}
	if ActiveCaptures == nil {
		t.Error("ActiveCaptures gauge not initialized")
	}
	if PlatformDisabled == nil {
		t.Error("PlatformDisabled gauge vec not initialized")
	}
}

func TestObserveCheck(t *testing.T) {
	Init()

	// None of these should panic.
	ObserveCheck("twitch", 120*time.Millisecond, nil, "")
	ObserveCheck("twitch", time.Second, errors.New("boom"), "transient")
	ObserveCheck("kick", time.Second, errors.New("denied"), "auth")
}

func TestSetPlatformDisabled(t *testing.T) {
	Init()

	SetPlatformDisabled("twitch", true)
	SetPlatformDisabled("twitch", false)
	SetPlatformDisabled("kick", true)
}

func TestCorrelationRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Fatalf("empty context returned corr %q", got)
	}
	ctx = WithCorrelation(ctx, "abc-123")
	if got := GetCorrelation(ctx); got != "abc-123" {
		t.Fatalf("corr = %q, want abc-123", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Fatal("LoggerWithCorr returned nil")
	}
}
