package match

import "fmt"

// State identifies where a match is in its lifecycle.
type State int

const (
	NotStarted State = iota
	MatchActive
	RoundActive
	TurnPending
	RoundComplete
	MatchComplete
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case MatchActive:
		return "MatchActive"
	case RoundActive:
		return "RoundActive"
	case TurnPending:
		return "TurnPending"
	case RoundComplete:
		return "RoundComplete"
	case MatchComplete:
		return "MatchComplete"
	default:
		return "Unknown"
	}
}

// transitions encodes the legal state machine edges. MatchComplete is
// terminal.
var transitions = map[State][]State{
	NotStarted:    {MatchActive},
	MatchActive:   {RoundActive},
	RoundActive:   {TurnPending, RoundComplete},
	TurnPending:   {RoundActive},
	RoundComplete: {MatchActive, MatchComplete},
}

func (d *Driver) transition(to State) error {
	for _, next := range transitions[d.state] {
		if next == to {
			d.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid match transition %s -> %s", d.state, to)
}
