package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucket(t *testing.T) {
	tb := NewTokenBucket(5, time.Second)

	// Test initial capacity
	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Expected token %d to be available", i+1)
		}
	}

	// Test exhaustion
	if tb.Allow() {
		t.Error("Expected no more tokens to be available")
	}

	// Test refill after waiting
	time.Sleep(time.Second + 100*time.Millisecond)
	if !tb.Allow() {
		t.Error("Expected tokens to be refilled after waiting")
	}

	// Test reset
	tb.tokens = 0
	tb.Reset()
	if tb.tokens != tb.capacity {
		t.Error("Expected tokens to be reset to capacity")
	}
}

func TestTokenBucketWaitCancellation(t *testing.T) {
	tb := NewTokenBucket(1, time.Hour)
	if !tb.Allow() {
		t.Fatal("Expected first token")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := tb.Wait(ctx); err == nil {
		t.Error("Expected Wait to fail once context expires")
	}
}

func TestPacerEnforcesInterval(t *testing.T) {
	p := NewPacer(50 * time.Millisecond)

	var slept time.Duration
	p.SetSleeper(func(ctx context.Context, d time.Duration) error {
		slept += d
		return nil
	})

	ctx := context.Background()

	// First call is free
	if err := p.Pace(ctx); err != nil {
		t.Fatalf("Pace failed: %v", err)
	}
	if slept != 0 {
		t.Errorf("Expected no sleep on first call, got %v", slept)
	}

	// Immediate second call must wait
	if err := p.Pace(ctx); err != nil {
		t.Fatalf("Pace failed: %v", err)
	}
	if slept <= 0 {
		t.Error("Expected second call to sleep")
	}
}

func TestPacerPropagatesCancellation(t *testing.T) {
	p := NewPacer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	if err := p.Pace(ctx); err != nil {
		t.Fatalf("First pace failed: %v", err)
	}

	cancel()
	if err := p.Pace(ctx); err == nil {
		t.Error("Expected cancellation error on second pace")
	}
}
