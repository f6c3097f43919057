package cli

import (
	"testing"
	"time"
)

func TestSignalContext(t *testing.T) {
	ctx, cancel := SignalContext()
	defer cancel()

	select {
	case <-ctx.Done():
		t.Error("context cancelled before any signal")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestSignalContextCancel(t *testing.T) {
	ctx, cancel := SignalContext()
	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Error("cancel did not propagate")
	}
}
