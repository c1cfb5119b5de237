package match

import "github.com/agentduel/agents/internal/agent"

// Side identifies one of the two competitors in a match.
type Side int

const (
	SideOne Side = iota
	SideTwo
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == SideOne {
		return SideTwo
	}
	return SideOne
}

// Turn is a single pending exchange: which side must act and the payload it
// acts on.
type Turn struct {
	Side  Side
	State agent.TurnState
}

// RoundOutcome is one side's view of a finished round: the points it earned
// and the game-specific outcome fields (choices, reveals).
type RoundOutcome struct {
	Points int
	Fields map[string]any
}

// Engine resolves turns for one game type. Engines are external
// collaborators: the driver owns phase sequencing and never interprets turn
// payloads or actions beyond forwarding them.
type Engine interface {
	// GameID identifies the game this engine implements.
	GameID() string
	// Spec advertises the rules text and I/O schemas for the game.
	Spec() agent.GameSpec
	// ForfeitAction produces the safe default action substituted when an
	// agent faults on the given turn state.
	ForfeitAction(state agent.TurnState) agent.Action
	// NewRound starts one round of the game.
	NewRound(number int) (Round, error)
}

// Round is one game instance played to completion. NextTurn yields pending
// turns until the round's phase sequence is exhausted.
type Round interface {
	// FirstMover reports which side moves first this round.
	FirstMover() Side
	// NextTurn returns the next pending turn, or ok false when the round's
	// phase sequence is exhausted.
	NextTurn() (turn Turn, ok bool)
	// Resolve applies one action. A forfeit action must always resolve.
	Resolve(side Side, action agent.Action) error
	// EndsMatch reports whether this round concludes the match early.
	EndsMatch() bool
	// Results reports both sides' outcomes once the round is exhausted.
	Results() [2]RoundOutcome
}
