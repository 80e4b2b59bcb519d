package lsp

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/dshills/fxbridge/internal/logging"
	"github.com/dshills/fxbridge/internal/transport"
)

// Listener receives one inbound protocol message.
type Listener func(message string)

// Relay posts protocol messages to the lsp endpoint and delivers the
// messages found in each reply.
type Relay struct {
	sender  transport.Sender
	deliver Listener
	logger  *logging.Logger

	// queue holds reply batches awaiting delivery. Whichever caller finds
	// the queue idle drains it, so batches never interleave and a listener
	// that sends from its callback only enqueues.
	qmu      sync.Mutex
	queue    [][]string
	draining bool
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayLogger sets the relay logger.
func WithRelayLogger(l *logging.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logging.OrNop(l).WithComponent("lsp-relay")
	}
}

// NewRelay creates a relay that sends through sender and hands each inbound
// message to deliver.
func NewRelay(sender transport.Sender, deliver Listener, opts ...RelayOption) *Relay {
	r := &Relay{
		sender:  sender,
		deliver: deliver,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SendAsync posts message and delivers the reply batch. Every failure is
// logged and discarded; the returned error is always nil.
func (r *Relay) SendAsync(ctx context.Context, message string) error {
	if _, err := r.Deliver(ctx, message); err != nil {
		r.logger.Warn("dropped lsp message: %v", err)
	}
	return nil
}

// Deliver posts message and delivers the reply batch, returning the number
// of messages in it. A non-2xx reply yields a *transport.StatusError and
// no deliveries; a malformed body yields ErrMalformedBatch and no deliveries.
// When another delivery is already running, including a send made from
// inside the listener, the batch is queued behind it and Deliver returns
// without waiting.
func (r *Relay) Deliver(ctx context.Context, message string) (int, error) {
	r.logger.Debug("send: %s", message)

	resp, err := r.sender.Send(ctx, transport.EndpointLSP, message)
	if err != nil {
		return 0, err
	}
	if err := transport.CheckStatus(transport.EndpointLSP, resp); err != nil {
		return 0, err
	}

	body := resp.Text()
	if body == "" {
		return 0, nil
	}

	messages, err := ParseBatch(body)
	if err != nil {
		return 0, err
	}

	if len(messages) > 0 {
		r.enqueue(messages)
	}
	return len(messages), nil
}

// enqueue appends batch and, unless a drain is already running, delivers
// queued batches in order until the queue is empty. No lock is held while
// the listener runs.
func (r *Relay) enqueue(batch []string) {
	r.qmu.Lock()
	r.queue = append(r.queue, batch)
	if r.draining {
		r.qmu.Unlock()
		return
	}
	r.draining = true
	defer func() {
		r.qmu.Lock()
		r.draining = false
		r.qmu.Unlock()
	}()

	for len(r.queue) > 0 {
		next := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.qmu.Unlock()

		for _, m := range next {
			r.logger.Debug("receive: %s", m)
			if r.deliver != nil {
				r.deliver(m)
			}
		}

		r.qmu.Lock()
	}
	r.qmu.Unlock()
}

// ParseBatch decodes an lsp reply body into its messages. String elements
// are returned unquoted; any other element is returned as raw JSON text.
func ParseBatch(body string) ([]string, error) {
	if !gjson.Valid(body) {
		return nil, fmt.Errorf("%w: invalid json", ErrMalformedBatch)
	}
	parsed := gjson.Parse(body)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("%w: expected array, got %s", ErrMalformedBatch, parsed.Type)
	}

	items := parsed.Array()
	messages := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type == gjson.String {
			messages = append(messages, item.Str)
		} else {
			messages = append(messages, item.Raw)
		}
	}
	return messages, nil
}
