package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGoErrorCancelsWhenEnabled(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")

	s.Go("worker", func(ctx context.Context) error { return boom })

	select {
	case <-s.Context().Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled after worker error")
	}
	if err := s.Err(); !errors.Is(err, boom) {
		t.Fatalf("Err = %v, want %v", err, boom)
	}
}

func TestGoPanicIsRecovered(t *testing.T) {
	s := New(context.Background(), WithCancelOnError(true))

	s.Go("worker", func(ctx context.Context) error { panic("kaboom") })

	waitCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Wait(waitCtx)
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestContextCanceledIsNotAnError(t *testing.T) {
	s := New(context.Background())
	s.Go("worker", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop = %v, want nil", err)
	}
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	s := New(context.Background())
	runs := make(chan struct{}, 16)

	s.GoRestart("poller", func(ctx context.Context) error {
		runs <- struct{}{}
		return errors.New("transient")
	})

	// First run plus at least one restart.
	for i := 0; i < 2; i++ {
		select {
		case <-runs:
		case <-time.After(5 * time.Second):
			t.Fatalf("run %d never happened", i)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop = %v", err)
	}
	if s.Active() != 0 {
		t.Fatalf("Active = %d after Stop", s.Active())
	}
}
