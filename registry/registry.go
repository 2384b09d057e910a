// Package registry fans published readings out to the configured sinks and
// suppresses duplicates per sink by checksum.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/st-keller/librefollow/component"
	"github.com/st-keller/librefollow/types"
)

// Sink delivers components to an external system.
type Sink interface {
	Publish(ctx context.Context, c component.Component) error
	Close() error
}

type delivery struct {
	checksum string
	at       time.Time
}

// Registry holds named sinks and what was last delivered to each.
type Registry struct {
	clock clockwork.Clock
	mu    sync.Mutex
	sinks map[string]Sink
	last  map[string]delivery
}

// New creates an empty Registry. A nil clock means the real clock.
func New(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		clock: clock,
		sinks: make(map[string]Sink),
		last:  make(map[string]delivery),
	}
}

// Register adds a sink under a unique name.
func (r *Registry) Register(name string, sink Sink) error {
	if name == "" {
		return fmt.Errorf("sink name required")
	}
	if sink == nil {
		return fmt.Errorf("sink required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sinks[name]; exists {
		return fmt.Errorf("sink %s already registered", name)
	}
	r.sinks[name] = sink
	return nil
}

// Names returns the registered sink names, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.sinks))
	for name := range r.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Publish sends c to every sink whose last successful delivery had a
// different checksum. Failed deliveries are retried on the next Publish.
// It returns the number of deliveries and the joined errors.
func (r *Registry) Publish(ctx context.Context, c component.Component) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	sent := 0
	for name, sink := range r.sinks {
		if prev, ok := r.last[name]; ok && prev.checksum == c.Checksum {
			continue
		}
		if err := sink.Publish(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", name, err))
			continue
		}
		r.last[name] = delivery{checksum: c.Checksum, at: r.clock.Now()}
		sent++
	}
	return sent, errors.Join(errs...)
}

// Forward publishes every state received on updates that carries a
// measurement, until ctx is done or updates is closed.
func (r *Registry) Forward(ctx context.Context, updates <-chan types.DisplayState, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-updates:
			if !ok {
				return
			}
			reading, ok := state.Reading()
			if !ok {
				continue
			}
			comp, err := component.New(component.TypeReading, state.SessionID, reading, r.clock.Now())
			if err != nil {
				logger.Error("reading_marshal_failed", "error", err)
				continue
			}
			comp.SessionID = state.SessionID
			sent, err := r.Publish(ctx, comp)
			if err != nil {
				logger.Warn("reading_publish_failed", "error", err)
			}
			if sent > 0 {
				logger.Debug("reading_published", "sinks", sent, "checksum", comp.Checksum)
			}
		}
	}
}

// Close closes every sink.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
