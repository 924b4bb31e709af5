package analysis

import "fmt"

// State is a state of the adaptive controller
type State uint8

const (
	Initializing State = iota
	Numbering
	Assembling
	Solving
	Estimating
	Deciding
	Converged
	MaxIterationsReached
	Failed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Numbering:
		return "numbering"
	case Assembling:
		return "assembling"
	case Solving:
		return "solving"
	case Estimating:
		return "estimating"
	case Deciding:
		return "deciding"
	case Converged:
		return "converged"
	case MaxIterationsReached:
		return "max_iterations_reached"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Terminal reports whether the controller stops in s
func (s State) Terminal() bool {
	return s == Converged || s == MaxIterationsReached || s == Failed
}
