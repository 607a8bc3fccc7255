package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestEvery_RunsPeriodically(t *testing.T) {
	s := New(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	s.Every(ctx, 10*time.Millisecond, "counter", func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	time.Sleep(100 * time.Millisecond)
	cancel()
	s.Wait()

	if got := runs.Load(); got < 3 {
		t.Fatalf("runs = %d, want at least 3", got)
	}
}

func TestEvery_SkipsOverlappingRuns(t *testing.T) {
	s := New(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running atomic.Int32
	var overlapped atomic.Bool

	s.Every(ctx, 5*time.Millisecond, "slow", func(ctx context.Context) error {
		if running.Add(1) > 1 {
			overlapped.Store(true)
		}
		defer running.Add(-1)

		time.Sleep(40 * time.Millisecond)
		return nil
	})

	time.Sleep(120 * time.Millisecond)
	cancel()
	s.Wait()

	if overlapped.Load() {
		t.Fatalf("task ran concurrently with itself")
	}
}

func TestEvery_ErrorDoesNotStopJob(t *testing.T) {
	s := New(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs atomic.Int32
	s.Every(ctx, 10*time.Millisecond, "failing", func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	})

	time.Sleep(80 * time.Millisecond)
	cancel()
	s.Wait()

	if got := runs.Load(); got < 2 {
		t.Fatalf("runs = %d, want job to keep running after errors", got)
	}
}

func TestWait_ReturnsAfterCancel(t *testing.T) {
	s := New(zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Every(ctx, 10*time.Millisecond, "job", func(ctx context.Context) error {
		return nil
	})

	cancel()

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Wait did not return after context cancellation")
	}
}
