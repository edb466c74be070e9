package hermes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatcher_RunsRequestsConcurrently(t *testing.T) {
	release := make(chan struct{})
	var running, peak atomic.Int32
	handler := func(_ context.Context, data []byte) []byte {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		running.Add(-1)
		return data
	}

	d := newDispatcher(4, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))

	var mu sync.Mutex
	var replies []string
	respond := func(b []byte) error {
		mu.Lock()
		defer mu.Unlock()
		replies = append(replies, string(b))
		return nil
	}
	for _, p := range []string{"a", "b", "c", "d"} {
		d.dispatch("test", []byte(p), respond)
	}

	deadline := time.Now().Add(2 * time.Second)
	for running.Load() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := running.Load(); got != 4 {
		t.Fatalf("expected 4 handlers in flight, got %d", got)
	}

	close(release)
	d.wait()

	if peak.Load() != 4 {
		t.Errorf("expected peak concurrency 4, got %d", peak.Load())
	}
	if len(replies) != 4 {
		t.Errorf("expected 4 replies, got %d", len(replies))
	}
}

func TestDispatcher_BlocksAtLimit(t *testing.T) {
	release := make(chan struct{})
	handler := func(_ context.Context, data []byte) []byte {
		<-release
		return data
	}
	d := newDispatcher(1, handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	noop := func([]byte) error { return nil }

	d.dispatch("test", []byte("first"), noop)

	second := make(chan struct{})
	go func() {
		d.dispatch("test", []byte("second"), noop)
		close(second)
	}()

	select {
	case <-second:
		t.Fatal("second dispatch accepted while the only slot was busy")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second dispatch never accepted")
	}
	d.wait()
}

func TestDispatcher_RespondErrorIsLogged(t *testing.T) {
	d := newDispatcher(0, func(_ context.Context, data []byte) []byte { return data },
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if d.limit() != DefaultMaxConcurrent {
		t.Errorf("expected default limit %d, got %d", DefaultMaxConcurrent, d.limit())
	}

	var calls atomic.Int32
	d.dispatch("test", []byte("x"), func([]byte) error {
		calls.Add(1)
		return errors.New("no responders")
	})
	d.wait()
	if calls.Load() != 1 {
		t.Errorf("expected respond to be called once, got %d", calls.Load())
	}
}
