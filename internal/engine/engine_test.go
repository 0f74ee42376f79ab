package engine

import (
	"testing"
	"time"

	"kalshi-taker/internal/api"
)

func TestAppendPricePrunesOldSamples(t *testing.T) {
	t.Parallel()
	b := &Bot{}
	now := time.Now().UTC()

	// One stale sample beyond the window, then fresh ones.
	b.appendPrice(100, now.Add(-16*time.Minute))
	b.appendPrice(101, now.Add(-10*time.Minute))
	b.appendPrice(102, now)

	history := b.historySnapshot()
	if len(history) != 2 {
		t.Fatalf("history = %d samples, want 2 (stale pruned)", len(history))
	}
	if history[0].Price != 101 {
		t.Errorf("oldest kept = %v, want 101", history[0].Price)
	}
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	t.Parallel()
	b := &Bot{}
	now := time.Now().UTC()

	b.appendPrice(100, now)
	snap := b.historySnapshot()
	snap[0].Price = 999

	if b.historySnapshot()[0].Price != 100 {
		t.Error("snapshot must not alias internal history")
	}
}

func TestEmitNeverBlocks(t *testing.T) {
	t.Parallel()
	b := &Bot{events: make(chan api.Event, 1)}

	// Fill the buffer, then emit again: must drop, not block.
	b.emit(api.Event{Type: "trading_signal"})
	done := make(chan struct{})
	go func() {
		b.emit(api.Event{Type: "trade_execution"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a full event channel")
	}
}
