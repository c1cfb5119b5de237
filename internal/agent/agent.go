// Package agent defines the lifecycle contract every pluggable duel agent
// must satisfy and the records exchanged with it at each match phase.
package agent

import (
	"context"
	"errors"
)

// ErrMalformedAction indicates an agent produced an action whose shape does
// not match the output spec for the current phase.
var ErrMalformedAction = errors.New("agent returned a malformed action")

// Position indicates which side moves first in a round.
type Position string

const (
	PositionFirst  Position = "first"
	PositionSecond Position = "second"
)

// Agent is the callback surface a loaded agent exposes to the match driver.
//
// OnTurn is the only callback that must produce a value; the remaining three
// are lifecycle hooks and implementations may treat them as no-ops. Callbacks
// on a single agent are never invoked concurrently. The context bounds
// blocking work inside a callback; implementations backed by a non-preemptible
// interpreter may ignore it, in which case the driver enforces the deadline
// at the call boundary instead.
type Agent interface {
	OnMatchStart(ctx context.Context, info MatchContext) error
	OnRoundStart(ctx context.Context, info RoundContext) error
	OnTurn(ctx context.Context, state TurnState) (Action, error)
	OnRoundEnd(ctx context.Context, result RoundResult) error
}

// GameSpec bundles the rules text and I/O schemas for one game.
type GameSpec struct {
	// Rules is the human-readable rules text, in markdown.
	Rules string
	// InputSpec describes the turn-state payloads the game produces.
	InputSpec map[string]any
	// OutputSpec describes the actions the game accepts per phase.
	OutputSpec map[string]any
}

// MatchContext is handed to an agent exactly once, before the first round.
// It is never mutated after construction.
type MatchContext struct {
	// GameID identifies the game of the first round.
	GameID string
	// MatchGameID is the match mode: a specific game id, or "all" when the
	// match interleaves every game type.
	MatchGameID    string
	RoundsPerMatch int
	// Rules, InputSpec and OutputSpec describe GameID. In "all" mode they
	// repeat the entry of AllGameRules for the opening game.
	Rules      string
	InputSpec  map[string]any
	OutputSpec map[string]any
	// AllGameRules and GameSequence are populated in "all" mode only.
	AllGameRules map[string]GameSpec
	GameSequence []string
}

// RoundContext is handed to an agent at the start of each round.
type RoundContext struct {
	// RoundNumber is 1-based and increases by exactly one per round.
	RoundNumber int
	// GameID identifies the game played this round. In "all" mode it may
	// differ round to round.
	GameID             string
	Position           Position
	YourTotalScore     int
	OpponentTotalScore int
	RoundsPlayed       int
}

// TurnState is the payload for a single turn callback. Its shape is game and
// phase specific; only Phase and RoundNumber are guaranteed. The game id is
// deliberately absent: agents without a declared game tag must classify the
// payload structurally (see the dispatch package).
type TurnState struct {
	Phase       string
	RoundNumber int
	// Fields holds the game-specific remainder of the payload.
	Fields map[string]any
}

// Field returns a named game-specific field and whether it was present.
func (s TurnState) Field(name string) (any, bool) {
	v, ok := s.Fields[name]
	return v, ok
}

// Action is the value an agent returns from a turn callback. Its required
// shape is determined by the phase and game via the declared output spec;
// the host core does not interpret it further.
type Action map[string]any

// RoundResult is handed to an agent when a round ends. Outcome carries the
// game-specific fields (choices made, reveals) from this agent's point of
// view.
type RoundResult struct {
	RoundNumber        int
	YourPoints         int
	OpponentPoints     int
	YourTotalScore     int
	OpponentTotalScore int
	Outcome            map[string]any
	// MatchComplete is true on the final round of the match.
	MatchComplete bool
}
