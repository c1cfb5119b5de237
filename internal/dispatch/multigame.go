package dispatch

import (
	"context"

	"github.com/agentduel/agents/internal/agent"
)

// MultiGame is an agent without a game tag, assembled from per-game handlers.
// It learns its markers from the match context and classifies each round
// through an embedded Router, so individual agents no longer re-derive game
// detection from payload shape.
type MultiGame struct {
	router *Router
}

// NewMultiGame creates a multi-game agent from per-game turn handlers.
func NewMultiGame(handlers map[string]Handler) *MultiGame {
	m := &MultiGame{router: NewRouter()}
	for gameID, h := range handlers {
		m.router.Handle(gameID, h)
	}
	return m
}

// OnMatchStart derives classification markers from the advertised game specs.
func (m *MultiGame) OnMatchStart(ctx context.Context, info agent.MatchContext) error {
	specs := info.AllGameRules
	if len(specs) == 0 {
		specs = map[string]agent.GameSpec{
			info.GameID: {Rules: info.Rules, InputSpec: info.InputSpec, OutputSpec: info.OutputSpec},
		}
	}
	for gameID, fields := range MarkersFromSpecs(specs) {
		m.router.SetMarkers(gameID, fields...)
	}
	return nil
}

// OnRoundStart pins the round's game, removing the need to classify.
func (m *MultiGame) OnRoundStart(ctx context.Context, info agent.RoundContext) error {
	m.router.StartRound(info.GameID)
	return nil
}

// OnTurn routes the turn state to the handler for the active game.
func (m *MultiGame) OnTurn(ctx context.Context, state agent.TurnState) (agent.Action, error) {
	return m.router.Route(ctx, state)
}

// OnRoundEnd is a no-op.
func (m *MultiGame) OnRoundEnd(ctx context.Context, result agent.RoundResult) error {
	return nil
}
