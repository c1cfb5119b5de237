// Package dispatch routes opaque turn-state payloads to game-specific
// handlers. Agents that declare no game tag receive payloads from more than
// one game within a single match; the router classifies each payload by its
// structurally distinguishing fields and caches the result for the round.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/agentduel/agents/internal/agent"
)

// ErrUnclassifiable indicates a turn state matched no game, or more than one.
// Ambiguity is surfaced rather than resolved by a silent default: guessing
// could route a real commit or bid decision to the wrong handler.
var ErrUnclassifiable = errors.New("turn state does not identify a single game")

// Handler produces an action for one game's turn states.
type Handler func(ctx context.Context, state agent.TurnState) (agent.Action, error)

// Router forwards turn states to per-game handlers. Classification happens at
// most once per round: an explicit StartRound pins the game, otherwise the
// first routed turn state is classified by marker fields and the result is
// held until the next StartRound.
//
// Router is not safe for concurrent use; callbacks on a single agent are
// strictly sequential, so it never needs to be.
type Router struct {
	handlers map[string]Handler
	markers  map[string][]string
	current  string
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]Handler),
		markers:  make(map[string][]string),
	}
}

// Handle registers the handler for a game.
func (r *Router) Handle(gameID string, h Handler) {
	r.handlers[gameID] = h
}

// SetMarkers declares the turn-state fields that identify a game. A marker
// must be a field present only in that game's payloads.
func (r *Router) SetMarkers(gameID string, fields ...string) {
	r.markers[gameID] = append([]string(nil), fields...)
}

// StartRound pins the active game for the round. The empty string clears the
// pin, forcing structural classification on the next turn.
func (r *Router) StartRound(gameID string) {
	r.current = gameID
}

// Classify resolves the game a turn state belongs to. A pinned or previously
// classified game is returned as-is; otherwise the state's fields are matched
// against the registered markers. Zero or multiple matches fail with
// ErrUnclassifiable.
func (r *Router) Classify(state agent.TurnState) (string, error) {
	if r.current != "" {
		return r.current, nil
	}
	var matches []string
	for gameID, fields := range r.markers {
		for _, field := range fields {
			if _, ok := state.Fields[field]; ok {
				matches = append(matches, gameID)
				break
			}
		}
	}
	switch len(matches) {
	case 1:
		r.current = matches[0]
		return r.current, nil
	case 0:
		return "", fmt.Errorf("%w: no marker field present in phase %q", ErrUnclassifiable, state.Phase)
	default:
		sort.Strings(matches)
		return "", fmt.Errorf("%w: markers matched %v in phase %q", ErrUnclassifiable, matches, state.Phase)
	}
}

// Route classifies the turn state and invokes the matching handler.
func (r *Router) Route(ctx context.Context, state agent.TurnState) (agent.Action, error) {
	gameID, err := r.Classify(state)
	if err != nil {
		return nil, err
	}
	h, ok := r.handlers[gameID]
	if !ok {
		return nil, fmt.Errorf("%w: no handler registered for game %q", ErrUnclassifiable, gameID)
	}
	return h(ctx, state)
}

// MarkersFromSpecs derives marker fields from the input specs of a set of
// games: a field is a marker for a game when it appears in that game's spec
// and no other. Games whose specs share every field produce no markers and
// remain unclassifiable without an explicit StartRound.
func MarkersFromSpecs(specs map[string]agent.GameSpec) map[string][]string {
	owners := make(map[string][]string)
	for gameID, spec := range specs {
		for _, field := range specFields(spec) {
			owners[field] = append(owners[field], gameID)
		}
	}
	markers := make(map[string][]string)
	for field, games := range owners {
		if len(games) == 1 {
			markers[games[0]] = append(markers[games[0]], field)
		}
	}
	for _, fields := range markers {
		sort.Strings(fields)
	}
	return markers
}

// specFields lists the turn-state field names an input spec declares. Specs
// may nest the field map under a "fields" key or declare fields at the top
// level.
func specFields(spec agent.GameSpec) []string {
	source := spec.InputSpec
	if nested, ok := spec.InputSpec["fields"].(map[string]any); ok {
		source = nested
	}
	fields := make([]string, 0, len(source))
	for name := range source {
		fields = append(fields, name)
	}
	return fields
}
