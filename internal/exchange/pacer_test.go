package exchange

import (
	"context"
	"testing"
	"time"
)

func TestPacerFirstRequestImmediate(t *testing.T) {
	t.Parallel()
	p := NewPacer(200 * time.Millisecond)

	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("first Wait took %v, expected immediate", elapsed)
	}
}

func TestPacerEnforcesSpacing(t *testing.T) {
	t.Parallel()
	p := NewPacer(200 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	elapsed := time.Since(start)

	// Three requests need at least two full gaps.
	if elapsed < 400*time.Millisecond {
		t.Errorf("three Waits took %v, want >= 400ms", elapsed)
	}
}

func TestPacerContextCancelled(t *testing.T) {
	t.Parallel()
	p := NewPacer(time.Hour)

	_ = p.Wait(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := p.Wait(ctx); err == nil {
		t.Error("expected context error, got nil")
	}
}
