// Package telemetry records operational events emitted while hosting
// matches, most importantly the callback faults the driver detects.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/agentduel/agents/internal/match"
)

// Severity describes the telemetry severity level.
type Severity string

const (
	SeverityInfo  Severity = "INFO"
	SeverityWarn  Severity = "WARN"
	SeverityError Severity = "ERROR"
)

// Event is one recorded occurrence within a match.
type Event struct {
	MatchID   string
	Severity  Severity
	Message   string
	Phase     string
	Round     int
	Timestamp time.Time
}

// Store persists telemetry events. The host supplies the implementation;
// result persistence is deliberately outside this module.
type Store interface {
	AppendEvent(ctx context.Context, evt Event) error
}

// Emitter records telemetry events.
type Emitter struct {
	store Store
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store Store) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt Event) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendEvent(ctx, evt)
}

// RecordFault implements match.Recorder, turning driver callback faults into
// warn-level events. Emit errors are dropped: fault recording must never
// interfere with the match itself.
func (e *Emitter) RecordFault(ctx context.Context, matchID string, fault match.CallbackError) {
	_ = e.Emit(ctx, Event{
		MatchID:  matchID,
		Severity: SeverityWarn,
		Message:  fault.Error(),
		Phase:    fault.Phase,
		Round:    fault.Round,
	})
}

// MemoryStore keeps events in memory. It backs tests and hosts that apply
// penalty policy within the process.
type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

// AppendEvent stores one event.
func (s *MemoryStore) AppendEvent(ctx context.Context, evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemoryStore) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}
