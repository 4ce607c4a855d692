package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/celestine-app/celestine/internal/domain/content"
)

func TestFlightRegistry_CollapsesConcurrentCalls(t *testing.T) {
	t.Parallel()

	reg := NewFlightRegistry()
	release := make(chan struct{})
	var calls atomic.Int64

	fn := func() (*flightOutcome, error) {
		calls.Add(1)
		<-release
		return &flightOutcome{entry: &content.CacheEntry{Payload: "once"}}, nil
	}

	const callers = 5
	var wg sync.WaitGroup
	outcomes := make([]*flightOutcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, _, err := reg.Do(context.Background(), "key", fn)
			if err != nil {
				t.Errorf("caller %d: Do() error = %v", i, err)
				return
			}
			outcomes[i] = out
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("flight executions = %d, want 1", got)
	}
	for i, out := range outcomes {
		if out == nil || out.entry.Payload != "once" {
			t.Errorf("caller %d: outcome = %+v", i, out)
		}
	}
}

func TestFlightRegistry_ErrorSharedWithJoiners(t *testing.T) {
	t.Parallel()

	reg := NewFlightRegistry()
	release := make(chan struct{})
	flightErr := errors.New("flight failed")

	fn := func() (*flightOutcome, error) {
		<-release
		return nil, flightErr
	}

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = reg.Do(context.Background(), "key", fn)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if !errors.Is(err, flightErr) {
			t.Errorf("caller %d: error = %v, want flight error", i, err)
		}
	}
}

func TestFlightRegistry_JoinerCancellationDoesNotStopFlight(t *testing.T) {
	t.Parallel()

	reg := NewFlightRegistry()
	release := make(chan struct{})
	done := make(chan struct{})

	fn := func() (*flightOutcome, error) {
		defer close(done)
		<-release
		return &flightOutcome{entry: &content.CacheEntry{Payload: "survived"}}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, _, err := reg.Do(ctx, "key", fn)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Do() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled joiner did not return promptly")
	}

	// The flight itself keeps running and still completes.
	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("flight did not run to completion after joiner left")
	}
}

func TestFlightRegistry_ForgetStartsFreshFlight(t *testing.T) {
	t.Parallel()

	reg := NewFlightRegistry()
	var calls atomic.Int64
	started := make(chan struct{})
	release := make(chan struct{})

	first := func() (*flightOutcome, error) {
		calls.Add(1)
		close(started)
		<-release
		return &flightOutcome{entry: &content.CacheEntry{Payload: "old"}}, nil
	}

	go func() {
		_, _, _ = reg.Do(context.Background(), "key", first)
	}()
	<-started

	// After Forget, a new Do runs its own function instead of joining.
	reg.Forget("key")
	out, _, err := reg.Do(context.Background(), "key", func() (*flightOutcome, error) {
		calls.Add(1)
		return &flightOutcome{entry: &content.CacheEntry{Payload: "new"}}, nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if out.entry.Payload != "new" {
		t.Errorf("payload = %q, want %q", out.entry.Payload, "new")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("flight executions = %d, want 2", got)
	}

	close(release)
}
