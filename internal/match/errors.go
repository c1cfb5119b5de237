package match

import (
	"context"
	"fmt"
)

// FaultKind classifies a callback fault detected by the driver.
type FaultKind string

const (
	// FaultTimeout indicates the callback exceeded the configured timeout.
	FaultTimeout FaultKind = "timeout"
	// FaultRaised indicates the callback raised an error.
	FaultRaised FaultKind = "raised"
	// FaultMalformedAction indicates the returned action had the wrong shape.
	FaultMalformedAction FaultKind = "malformed_action"
	// FaultUnclassifiableTurn indicates a multi-game agent could not
	// classify the turn payload.
	FaultUnclassifiableTurn FaultKind = "unclassifiable_turn"
)

// CallbackError records one callback fault. Faults are non-fatal to the
// match: the driver substitutes a safe default and continues, but each
// occurrence is recorded so the host can penalize or disqualify per its own
// policy.
type CallbackError struct {
	Kind  FaultKind
	Side  Side
	Phase string
	Round int
	Err   error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("side %d callback fault (%s) in phase %q, round %d: %v",
		e.Side, e.Kind, e.Phase, e.Round, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// Recorder receives every callback fault the driver detects. Implementations
// decide the host policy (telemetry, penalties, disqualification); the
// driver only reports.
type Recorder interface {
	RecordFault(ctx context.Context, matchID string, fault CallbackError)
}
