package lsp

import (
	"context"
	"sync"

	"github.com/dshills/fxbridge/internal/logging"
	"github.com/dshills/fxbridge/internal/transport"
)

// Disposable is returned by AddListener.
type Disposable interface {
	Dispose()
}

// MessageProcessor is the capability the embedded editor widget uses to
// exchange protocol messages with the service.
type MessageProcessor interface {
	// AddListener makes fn the only receiver of inbound messages.
	AddListener(fn Listener) Disposable
	// SendAsync sends one outbound message.
	SendAsync(ctx context.Context, message string) error
}

type nopDisposable struct{}

func (nopDisposable) Dispose() {}

// Processor is a single-slot MessageProcessor. The most recent AddListener
// wins; disposing an earlier registration has no effect.
type Processor struct {
	mu       sync.RWMutex
	listener Listener

	relay  *Relay
	logger *logging.Logger
}

// NewProcessor creates a processor that relays through sender.
func NewProcessor(sender transport.Sender, logger *logging.Logger) *Processor {
	p := &Processor{logger: logging.OrNop(logger).WithComponent("lsp-processor")}
	p.relay = NewRelay(sender, p.dispatch, WithRelayLogger(logger))
	return p
}

// AddListener replaces the active listener.
func (p *Processor) AddListener(fn Listener) Disposable {
	p.mu.Lock()
	p.listener = fn
	p.mu.Unlock()
	return nopDisposable{}
}

// SendAsync delegates to the relay.
func (p *Processor) SendAsync(ctx context.Context, message string) error {
	return p.relay.SendAsync(ctx, message)
}

// Relay returns the underlying relay.
func (p *Processor) Relay() *Relay {
	return p.relay
}

// dispatch is called outside the slot lock so a listener may re-register.
func (p *Processor) dispatch(message string) {
	p.mu.RLock()
	fn := p.listener
	p.mu.RUnlock()

	if fn == nil {
		p.logger.Debug("no listener registered, dropping message")
		return
	}
	fn(message)
}

var _ MessageProcessor = (*Processor)(nil)
