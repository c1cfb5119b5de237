package loader

import (
	"context"
	"fmt"

	lua "github.com/Shopify/go-lua"

	"github.com/agentduel/agents/internal/agent"
)

// Handle is a loaded, validated, instantiated agent. It owns the underlying
// interpreter state exclusively; callbacks must stay strictly sequential,
// which the match driver guarantees.
//
// The interpreter cannot be preempted mid-call, so the context arguments are
// not consulted here; the driver enforces deadlines at the call boundary.
type Handle struct {
	state   *lua.State
	path    string
	gameTag string
}

// GameTag reports the game the agent declared itself fit for. Empty means
// the agent supports any game.
func (h *Handle) GameTag() string { return h.gameTag }

// Path reports the source file the agent was loaded from.
func (h *Handle) Path() string { return h.path }

// OnMatchStart forwards the match context to the agent's on_match_start hook.
func (h *Handle) OnMatchStart(ctx context.Context, info agent.MatchContext) error {
	return h.invokeHook("on_match_start", matchContextFields(info))
}

// OnRoundStart forwards the round context to the agent's on_round_start hook.
func (h *Handle) OnRoundStart(ctx context.Context, info agent.RoundContext) error {
	return h.invokeHook("on_round_start", roundContextFields(info))
}

// OnTurn invokes the agent's on_turn function and converts its returned
// table into an action. A non-table return is a malformed action, not a
// game-engine decision.
func (h *Handle) OnTurn(ctx context.Context, state agent.TurnState) (agent.Action, error) {
	l := h.state
	top := l.Top()
	defer l.SetTop(top)

	l.Field(lua.RegistryIndex, registryInstance)
	l.Field(-1, turnFunction)
	if l.TypeOf(-1) != lua.TypeFunction {
		return nil, fmt.Errorf("%w: agent %s lost its %q function", agent.ErrMalformedAction, h.path, turnFunction)
	}
	l.PushValue(-2)
	pushMap(l, turnStateFields(state))
	if err := l.ProtectedCall(2, 1, 0); err != nil {
		return nil, fmt.Errorf("agent %s: %s: %w", h.path, turnFunction, err)
	}
	if l.TypeOf(-1) != lua.TypeTable {
		return nil, fmt.Errorf("%w: %s returned a non-table value", agent.ErrMalformedAction, turnFunction)
	}
	return agent.Action(tableToMap(l, -1)), nil
}

// OnRoundEnd forwards the round result to the agent's on_round_end hook.
func (h *Handle) OnRoundEnd(ctx context.Context, result agent.RoundResult) error {
	return h.invokeHook("on_round_end", roundResultFields(result))
}

// invokeHook calls a lifecycle hook when the instance defines one. Hooks are
// optional: a missing or non-function hook is a no-op, matching the
// BaseAgent defaults.
func (h *Handle) invokeHook(name string, fields map[string]any) error {
	l := h.state
	top := l.Top()
	defer l.SetTop(top)

	l.Field(lua.RegistryIndex, registryInstance)
	l.Field(-1, name)
	if l.TypeOf(-1) != lua.TypeFunction {
		return nil
	}
	l.PushValue(-2)
	pushMap(l, fields)
	if err := l.ProtectedCall(2, 0, 0); err != nil {
		return fmt.Errorf("agent %s: %s: %w", h.path, name, err)
	}
	return nil
}

func matchContextFields(info agent.MatchContext) map[string]any {
	fields := map[string]any{
		"game_id":          info.GameID,
		"match_game_id":    info.MatchGameID,
		"rounds_per_match": info.RoundsPerMatch,
		"rules":            info.Rules,
		"input_spec":       info.InputSpec,
		"output_spec":      info.OutputSpec,
	}
	if len(info.AllGameRules) > 0 {
		all := make(map[string]any, len(info.AllGameRules))
		for gameID, spec := range info.AllGameRules {
			all[gameID] = map[string]any{
				"rules":       spec.Rules,
				"input_spec":  spec.InputSpec,
				"output_spec": spec.OutputSpec,
			}
		}
		fields["all_game_rules"] = all
		fields["game_sequence"] = info.GameSequence
	}
	return fields
}

func roundContextFields(info agent.RoundContext) map[string]any {
	return map[string]any{
		"round_number":         info.RoundNumber,
		"game_id":              info.GameID,
		"position":             string(info.Position),
		"your_total_score":     info.YourTotalScore,
		"opponent_total_score": info.OpponentTotalScore,
		"rounds_played":        info.RoundsPlayed,
	}
}

func turnStateFields(state agent.TurnState) map[string]any {
	fields := make(map[string]any, len(state.Fields)+2)
	for name, value := range state.Fields {
		fields[name] = value
	}
	fields["phase"] = state.Phase
	fields["round_number"] = state.RoundNumber
	return fields
}

func roundResultFields(result agent.RoundResult) map[string]any {
	fields := make(map[string]any, len(result.Outcome)+6)
	for name, value := range result.Outcome {
		fields[name] = value
	}
	fields["round_number"] = result.RoundNumber
	fields["your_points"] = result.YourPoints
	fields["opponent_points"] = result.OpponentPoints
	fields["your_total_score"] = result.YourTotalScore
	fields["opponent_total_score"] = result.OpponentTotalScore
	fields["match_complete"] = result.MatchComplete
	return fields
}
