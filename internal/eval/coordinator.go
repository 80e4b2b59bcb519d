// Package eval asks the formula-language service to evaluate an expression
// against a context snapshot.
package eval

import (
	"context"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/fxbridge/internal/logging"
	"github.com/dshills/fxbridge/internal/transport"
)

// ErrMalformedResponse indicates an eval reply body that is not valid JSON.
var ErrMalformedResponse = errors.New("malformed eval response")

// Request is the payload posted to the eval endpoint.
type Request struct {
	Context    string
	Expression string
}

// Encode returns the JSON body {"context": ..., "expression": ...}.
func (r Request) Encode() (string, error) {
	body, err := sjson.Set(`{}`, "context", r.Context)
	if err != nil {
		return "", err
	}
	return sjson.Set(body, "expression", r.Expression)
}

// OutcomeKind classifies an evaluation reply.
type OutcomeKind int

const (
	// OutcomeEmpty means the reply carried neither a result nor an error.
	OutcomeEmpty OutcomeKind = iota
	// OutcomeValue means the reply carried a result.
	OutcomeValue
	// OutcomeError means the reply carried an error message.
	OutcomeError
)

// String returns the kind name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeEmpty:
		return "empty"
	case OutcomeValue:
		return "value"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// Outcome is the interpreted reply of one evaluation.
type Outcome struct {
	Kind OutcomeKind
	Text string
}

// Value returns a value outcome.
func Value(s string) Outcome { return Outcome{Kind: OutcomeValue, Text: s} }

// Error returns an error outcome.
func Error(s string) Outcome { return Outcome{Kind: OutcomeError, Text: s} }

// Empty returns the empty outcome.
func Empty() Outcome { return Outcome{Kind: OutcomeEmpty} }

// Coordinator posts evaluation requests and interprets replies.
type Coordinator struct {
	sender transport.Sender
	logger *logging.Logger
}

// NewCoordinator creates a coordinator that sends through sender.
func NewCoordinator(sender transport.Sender, logger *logging.Logger) *Coordinator {
	return &Coordinator{
		sender: sender,
		logger: logging.OrNop(logger).WithComponent("eval"),
	}
}

// Evaluate posts req to the eval endpoint. Any returned error means there is
// no outcome and the caller should leave its state unchanged.
func (c *Coordinator) Evaluate(ctx context.Context, req Request) (Outcome, error) {
	payload, err := req.Encode()
	if err != nil {
		return Outcome{}, fmt.Errorf("encode eval request: %w", err)
	}

	resp, err := c.sender.Send(ctx, transport.EndpointEval, payload)
	if err != nil {
		return Outcome{}, err
	}
	if err := transport.CheckStatus(transport.EndpointEval, resp); err != nil {
		return Outcome{}, err
	}

	out, err := ParseOutcome(resp.Text())
	if err != nil {
		return Outcome{}, err
	}
	c.logger.Debug("evaluated %q: %s", req.Expression, out.Kind)
	return out, nil
}

// ParseOutcome interprets an eval reply body. The body must be a JSON
// object. A truthy "result" wins over a truthy "error"; anything else is
// empty.
func ParseOutcome(body string) (Outcome, error) {
	if !gjson.Valid(body) {
		return Outcome{}, ErrMalformedResponse
	}
	parsed := gjson.Parse(body)
	if !parsed.IsObject() {
		return Outcome{}, fmt.Errorf("%w: expected object, got %s", ErrMalformedResponse, parsed.Type)
	}

	if r := parsed.Get("result"); truthy(r) {
		return Value(display(r)), nil
	}
	if e := parsed.Get("error"); truthy(e) {
		return Error(display(e)), nil
	}
	return Empty(), nil
}

// truthy applies JavaScript truthiness to a JSON value.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.String:
		return r.Str != ""
	case gjson.Number:
		return r.Num != 0
	case gjson.True, gjson.JSON:
		return true
	default:
		return false
	}
}

func display(r gjson.Result) string {
	if r.Type == gjson.String {
		return r.Str
	}
	return r.Raw
}
