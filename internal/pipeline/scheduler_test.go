package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSingleFlightNeverOverlaps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var active, peak, calls atomic.Int32
	fn := func(context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		if calls.Add(1) >= 5 {
			cancel()
		}
		time.Sleep(5 * time.Millisecond)
		return nil
	}

	err := RunSingleFlight(ctx, testLogger(), "test", time.Millisecond, fn)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if peak.Load() != 1 {
		t.Fatalf("peak concurrency = %d", peak.Load())
	}
}

func TestRunSingleFlightSurvivesPanicsAndErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	fn := func(context.Context) error {
		switch calls.Add(1) {
		case 1:
			panic("boom")
		case 2:
			return errors.New("transient")
		default:
			cancel()
			return nil
		}
	}

	if err := RunSingleFlight(ctx, testLogger(), "test", time.Millisecond, fn); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d", calls.Load())
	}
}

func TestRunSingleFlightWaitsRemainderOfInterval(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var starts []time.Time
	fn := func(context.Context) error {
		starts = append(starts, time.Now())
		if len(starts) == 2 {
			cancel()
		}
		return nil
	}

	_ = RunSingleFlight(ctx, testLogger(), "test", 40*time.Millisecond, fn)
	if len(starts) != 2 {
		t.Fatalf("ticks = %d", len(starts))
	}
	if gap := starts[1].Sub(starts[0]); gap < 35*time.Millisecond {
		t.Fatalf("gap between ticks = %v", gap)
	}
}
