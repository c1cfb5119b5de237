// Package match drives one match between two agent handles: match-start,
// then for each round round-start, turns until the round's phase sequence is
// exhausted, then round-end. The driver owns phase sequencing; game engines
// resolve the turns.
package match

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agentduel/agents/internal/agent"
	"github.com/agentduel/agents/internal/dispatch"
)

const (
	// MatchGameAll is the match mode that interleaves every registered game.
	MatchGameAll = "all"
	// DefaultTurnTimeout bounds a callback when Config.TurnTimeout is unset.
	DefaultTurnTimeout = 30 * time.Second

	tracerName = "github.com/agentduel/agents/internal/match"
)

// Config controls one match.
type Config struct {
	// Rounds is the number of rounds to play.
	Rounds int
	// Sequence optionally fixes the game played each round; it must name one
	// game id per round. When empty, a single engine plays every round and
	// multiple engines are cycled in registration order.
	Sequence []string
	// TurnTimeout bounds each callback invocation.
	TurnTimeout time.Duration
	// Recorder, when set, receives every callback fault.
	Recorder Recorder
}

// Summary reports a finished match.
type Summary struct {
	MatchID      string
	RoundsPlayed int
	Scores       [2]int
	Faults       []CallbackError
}

// Driver runs a single match. It is single-use: a driver owns its two agent
// handles for exactly one match, issues their callbacks strictly
// sequentially, and never invokes anything after the match completes.
type Driver struct {
	cfg      Config
	engines  map[string]Engine
	sequence []string
	sides    [2]agent.Agent
	callers  [2]*caller
	matchID  string
	state    State
	totals   [2]int
	faults   []CallbackError
}

// NewDriver assembles a driver for one match between two agents over the
// given engines.
func NewDriver(cfg Config, engines []Engine, one, two agent.Agent) (*Driver, error) {
	if cfg.Rounds <= 0 {
		return nil, fmt.Errorf("rounds must be positive, got %d", cfg.Rounds)
	}
	if len(engines) == 0 {
		return nil, errors.New("at least one game engine is required")
	}
	if one == nil || two == nil {
		return nil, errors.New("both sides need an agent")
	}
	byID := make(map[string]Engine, len(engines))
	order := make([]string, 0, len(engines))
	for _, e := range engines {
		if _, dup := byID[e.GameID()]; dup {
			return nil, fmt.Errorf("duplicate engine for game %q", e.GameID())
		}
		byID[e.GameID()] = e
		order = append(order, e.GameID())
	}

	sequence := cfg.Sequence
	if len(sequence) == 0 {
		sequence = make([]string, cfg.Rounds)
		for i := range sequence {
			sequence[i] = order[i%len(order)]
		}
	}
	if len(sequence) != cfg.Rounds {
		return nil, fmt.Errorf("sequence names %d rounds, config wants %d", len(sequence), cfg.Rounds)
	}
	for _, gameID := range sequence {
		if _, ok := byID[gameID]; !ok {
			return nil, fmt.Errorf("sequence references unknown game %q", gameID)
		}
	}

	return &Driver{
		cfg:      cfg,
		engines:  byID,
		sequence: sequence,
		sides:    [2]agent.Agent{one, two},
		matchID:  uuid.NewString(),
		state:    NotStarted,
	}, nil
}

// MatchID returns the match identifier used in summaries and fault records.
func (d *Driver) MatchID() string { return d.matchID }

// State reports the driver's current lifecycle state.
func (d *Driver) State() State { return d.state }

// Run plays the match to completion. Callback faults are recorded and
// substituted with the engine's forfeit action; engine faults and context
// cancellation abort the match. Cancellation is observed at the next
// callback boundary at the latest.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	if d.state != NotStarted {
		return nil, fmt.Errorf("match %s already ran", d.matchID)
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "match.run", trace.WithAttributes(
		attribute.String("match.id", d.matchID),
		attribute.Int("match.rounds", d.cfg.Rounds),
	))
	defer span.End()

	d.callers = [2]*caller{newCaller(), newCaller()}
	defer d.callers[SideOne].close()
	defer d.callers[SideTwo].close()

	if err := d.transition(MatchActive); err != nil {
		return nil, err
	}
	info := d.matchContext()
	for _, side := range []Side{SideOne, SideTwo} {
		if err := d.invokeHook(ctx, side, "match_start", 0, func(ctx context.Context) error {
			return d.sides[side].OnMatchStart(ctx, info)
		}); err != nil {
			return nil, err
		}
	}

	roundsPlayed := 0
	for round := 1; round <= d.cfg.Rounds; round++ {
		gameID := d.sequence[round-1]
		complete, err := d.playRound(ctx, d.engines[gameID], gameID, round)
		if err != nil {
			return nil, err
		}
		roundsPlayed = round
		span.AddEvent("round.complete", trace.WithAttributes(
			attribute.Int("round", round),
			attribute.String("game", gameID),
		))
		if complete {
			break
		}
		if err := d.transition(MatchActive); err != nil {
			return nil, err
		}
	}

	if err := d.transition(MatchComplete); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("match.faults", len(d.faults)))
	return &Summary{
		MatchID:      d.matchID,
		RoundsPlayed: roundsPlayed,
		Scores:       d.totals,
		Faults:       d.faults,
	}, nil
}

// playRound runs one round and reports whether it concludes the match.
func (d *Driver) playRound(ctx context.Context, engine Engine, gameID string, round int) (bool, error) {
	r, err := engine.NewRound(round)
	if err != nil {
		return false, fmt.Errorf("start round %d of %s: %w", round, gameID, err)
	}
	if err := d.transition(RoundActive); err != nil {
		return false, err
	}

	first := r.FirstMover()
	for _, side := range []Side{first, first.Opponent()} {
		info := agent.RoundContext{
			RoundNumber:        round,
			GameID:             gameID,
			Position:           agent.PositionSecond,
			YourTotalScore:     d.totals[side],
			OpponentTotalScore: d.totals[side.Opponent()],
			RoundsPlayed:       round - 1,
		}
		if side == first {
			info.Position = agent.PositionFirst
		}
		if err := d.invokeHook(ctx, side, "round_start", round, func(ctx context.Context) error {
			return d.sides[side].OnRoundStart(ctx, info)
		}); err != nil {
			return false, err
		}
	}

	for {
		turn, ok := r.NextTurn()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if err := d.transition(TurnPending); err != nil {
			return false, err
		}
		action, err := d.callers[turn.Side].invoke(ctx, d.timeout(), func(ctx context.Context) (agent.Action, error) {
			return d.sides[turn.Side].OnTurn(ctx, turn.State)
		})
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			d.recordFault(ctx, CallbackError{
				Kind:  classifyFault(err),
				Side:  turn.Side,
				Phase: turn.State.Phase,
				Round: round,
				Err:   err,
			})
			action = engine.ForfeitAction(turn.State)
		}
		if err := r.Resolve(turn.Side, action); err != nil {
			return false, fmt.Errorf("resolve turn in round %d of %s: %w", round, gameID, err)
		}
		if err := d.transition(RoundActive); err != nil {
			return false, err
		}
	}

	outcomes := r.Results()
	d.totals[SideOne] += outcomes[SideOne].Points
	d.totals[SideTwo] += outcomes[SideTwo].Points
	if err := d.transition(RoundComplete); err != nil {
		return false, err
	}

	complete := round == d.cfg.Rounds || r.EndsMatch()
	for _, side := range []Side{SideOne, SideTwo} {
		result := agent.RoundResult{
			RoundNumber:        round,
			YourPoints:         outcomes[side].Points,
			OpponentPoints:     outcomes[side.Opponent()].Points,
			YourTotalScore:     d.totals[side],
			OpponentTotalScore: d.totals[side.Opponent()],
			Outcome:            outcomes[side].Fields,
			MatchComplete:      complete,
		}
		if err := d.invokeHook(ctx, side, "round_end", round, func(ctx context.Context) error {
			return d.sides[side].OnRoundEnd(ctx, result)
		}); err != nil {
			return false, err
		}
	}
	return complete, nil
}

// invokeHook runs a lifecycle hook through the side's caller. Hook faults are
// recorded and swallowed; only cancellation aborts the match.
func (d *Driver) invokeHook(ctx context.Context, side Side, phase string, round int, hook func(context.Context) error) error {
	_, err := d.callers[side].invoke(ctx, d.timeout(), func(ctx context.Context) (agent.Action, error) {
		return nil, hook(ctx)
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	d.recordFault(ctx, CallbackError{
		Kind:  classifyFault(err),
		Side:  side,
		Phase: phase,
		Round: round,
		Err:   err,
	})
	return nil
}

func (d *Driver) recordFault(ctx context.Context, fault CallbackError) {
	d.faults = append(d.faults, fault)
	log.Printf("match %s: %v", d.matchID, &fault)
	if d.cfg.Recorder != nil {
		d.cfg.Recorder.RecordFault(ctx, d.matchID, fault)
	}
}

func (d *Driver) timeout() time.Duration {
	if d.cfg.TurnTimeout > 0 {
		return d.cfg.TurnTimeout
	}
	return DefaultTurnTimeout
}

// matchContext builds the immutable record handed to both sides at match
// start.
func (d *Driver) matchContext() agent.MatchContext {
	openingID := d.sequence[0]
	opening := d.engines[openingID].Spec()
	info := agent.MatchContext{
		GameID:         openingID,
		MatchGameID:    openingID,
		RoundsPerMatch: d.cfg.Rounds,
		Rules:          opening.Rules,
		InputSpec:      opening.InputSpec,
		OutputSpec:     opening.OutputSpec,
	}
	if len(d.engines) > 1 {
		info.MatchGameID = MatchGameAll
		info.AllGameRules = make(map[string]agent.GameSpec, len(d.engines))
		for gameID, engine := range d.engines {
			info.AllGameRules[gameID] = engine.Spec()
		}
		info.GameSequence = append([]string(nil), d.sequence...)
	}
	return info
}

func classifyFault(err error) FaultKind {
	switch {
	case errors.Is(err, errCallbackTimeout), errors.Is(err, context.DeadlineExceeded):
		return FaultTimeout
	case errors.Is(err, agent.ErrMalformedAction):
		return FaultMalformedAction
	case errors.Is(err, dispatch.ErrUnclassifiable):
		return FaultUnclassifiableTurn
	default:
		return FaultRaised
	}
}
