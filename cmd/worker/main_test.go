package main

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIgnoreCanceled(t *testing.T) {
	if err := ignoreCanceled(context.Canceled); err != nil {
		t.Fatalf("expected canceled to be ignored, got %v", err)
	}
	if err := ignoreCanceled(fmt.Errorf("loop: %w", context.Canceled)); err != nil {
		t.Fatalf("expected wrapped canceled to be ignored, got %v", err)
	}

	boom := errors.New("boom")
	if err := ignoreCanceled(boom); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := ignoreCanceled(nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
