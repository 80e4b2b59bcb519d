package editor

import "github.com/dshills/fxbridge/internal/eval"

// State is the externally observable editor state.
//
// EvaluateValue and Error are never both set once an evaluation has
// completed. Both are empty before the first evaluation completes.
type State struct {
	Formula       string `json:"formula"`
	EvaluateValue string `json:"evaluateValue,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Publisher receives every state change. It is called serially and must not
// call back into the Machine that invoked it.
type Publisher func(State)

// WithOutcome returns the state for formula after an evaluation produced out.
func WithOutcome(formula string, out eval.Outcome) State {
	switch out.Kind {
	case eval.OutcomeValue:
		return State{Formula: formula, EvaluateValue: out.Text}
	case eval.OutcomeError:
		return State{Formula: formula, Error: out.Text}
	default:
		return State{Formula: formula}
	}
}
