package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/st-keller/librefollow/component"
	"github.com/st-keller/librefollow/types"
)

type recordingSink struct {
	mu        sync.Mutex
	published []component.Component
	err       error
	closed    bool
}

func (s *recordingSink) Publish(_ context.Context, c component.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.published = append(s.published, c)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.published)
}

func reading(t *testing.T, value string) component.Component {
	t.Helper()
	c, err := component.New(component.TypeReading, "s1", types.Reading{Value: value, Unit: "mg/dL"}, time.Now())
	if err != nil {
		t.Fatalf("component: %v", err)
	}
	return c
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := New(nil)
	if err := r.Register("mqtt", &recordingSink{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register("mqtt", &recordingSink{}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := r.Register("", &recordingSink{}); err == nil {
		t.Fatal("expected empty name error")
	}
}

func TestPublishSkipsUnchanged(t *testing.T) {
	r := New(nil)
	sink := &recordingSink{}
	_ = r.Register("mqtt", sink)
	ctx := context.Background()

	for _, v := range []string{"142", "142", "143", "143", "142"} {
		if _, err := r.Publish(ctx, reading(t, v)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if sink.count() != 3 {
		t.Fatalf("expected 3 deliveries, got %d", sink.count())
	}
}

func TestPublishRetriesAfterFailure(t *testing.T) {
	r := New(nil)
	failing := &recordingSink{err: errors.New("broker down")}
	healthy := &recordingSink{}
	_ = r.Register("kafka", failing)
	_ = r.Register("mqtt", healthy)
	ctx := context.Background()

	sent, err := r.Publish(ctx, reading(t, "142"))
	if err == nil || sent != 1 {
		t.Fatalf("expected one delivery and an error, got sent=%d err=%v", sent, err)
	}

	failing.mu.Lock()
	failing.err = nil
	failing.mu.Unlock()

	sent, err = r.Publish(ctx, reading(t, "142"))
	if err != nil || sent != 1 {
		t.Fatalf("expected retry to the failed sink only, got sent=%d err=%v", sent, err)
	}
	if failing.count() != 1 || healthy.count() != 1 {
		t.Fatalf("unexpected counts kafka=%d mqtt=%d", failing.count(), healthy.count())
	}

	if err := r.Close(); err != nil || !failing.closed || !healthy.closed {
		t.Fatalf("close: %v", err)
	}
}

func TestForwardPublishesReadings(t *testing.T) {
	at := time.Date(2025, 1, 5, 22, 33, 54, 0, time.UTC)
	r := New(clockwork.NewFakeClockAt(at))
	sink := &recordingSink{}
	_ = r.Register("mqtt", sink)

	updates := make(chan types.DisplayState, 4)
	updates <- types.DisplayState{SessionID: "s1", NextUpdateCountdown: "59s"}
	updates <- types.DisplayState{SessionID: "s1", HasMeasurement: true, Value: "142", NextUpdateCountdown: "58s"}
	updates <- types.DisplayState{SessionID: "s1", HasMeasurement: true, Value: "142", NextUpdateCountdown: "57s"}
	close(updates)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Forward(ctx, updates, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if sink.count() != 1 {
		t.Fatalf("expected a single delivery for an unchanged reading, got %d", sink.count())
	}
	if got := sink.published[0].SessionID; got != "s1" {
		t.Fatalf("session id = %q", got)
	}
	if got := sink.published[0].Time; !got.Equal(at) {
		t.Fatalf("envelope time = %v, want clock time %v", got, at)
	}
}
