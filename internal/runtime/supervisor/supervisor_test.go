package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "crmbot/pkg/logx"
)

func TestGo_PanicRecordedAndCancels(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithLogger(logx.Nop()), WithCancelOnError(true))
	s.Go("boom", func(context.Context) error { panic("kaboom") })
	s.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatalf("expected recorded panic")
	}
}

func TestGo_CanceledIsClean(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestGoRestart_RetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var runs atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		if runs.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := runs.Load(); got != 3 {
		t.Fatalf("runs=%d want 3", got)
	}
}

func TestStop_TimesOut(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	release := make(chan struct{})
	s.Go("stubborn", func(context.Context) error {
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}
