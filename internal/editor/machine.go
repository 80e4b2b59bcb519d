// Package editor owns the formula editor state and reconciles user edits
// with evaluation replies from the formula-language service.
//
// Evaluations are fire-and-forget relative to the visible state: an edit is
// published immediately and its evaluation result follows whenever the
// service replies. Each evaluation is tagged with a sequence number. When
// stale results are discarded (the default), a reply is applied only if no
// newer evaluation has been started since. Otherwise the last reply to
// arrive wins, even if it belongs to an older edit.
package editor

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/fxbridge/internal/eval"
	"github.com/dshills/fxbridge/internal/logging"
	"github.com/dshills/fxbridge/internal/lsp"
	"github.com/dshills/fxbridge/internal/transport"
)

// DocumentScheme prefixes document URIs handed to the widget.
const DocumentScheme = "powerfx://demo"

// Evaluator evaluates one request.
type Evaluator interface {
	Evaluate(ctx context.Context, req eval.Request) (eval.Outcome, error)
}

// Config holds the values a Machine is constructed from.
type Config struct {
	// Formula is the initial editor text.
	Formula string
	// Context is the serialized record snapshot evaluations run against.
	Context string
	// InitialEvalDelay postpones the first evaluation of a non-empty formula.
	InitialEvalDelay time.Duration
	// MinLines and MaxLines bound the visible editor height. Values below 1
	// are treated as 1.
	MinLines int
	MaxLines int
	// DiscardStale drops replies to evaluations that have been superseded.
	DiscardStale bool
}

// DefaultConfig returns a configuration with the default delay and the
// stale-reply guard enabled.
func DefaultConfig() Config {
	return Config{
		InitialEvalDelay: 100 * time.Millisecond,
		MinLines:         1,
		MaxLines:         1,
		DiscardStale:     true,
	}
}

// Machine is the editor state machine for one mounted widget.
type Machine struct {
	id        string
	cfg       Config
	evaluator Evaluator
	processor *lsp.Processor
	publish   Publisher
	logger    *logging.Logger

	// pubMu serializes state transitions together with their publication.
	pubMu sync.Mutex

	mu      sync.Mutex
	state   State
	context string
	seq     uint64
	started bool
	closed  bool
	timer   *time.Timer

	// initial is closed once the initial evaluation has been launched or
	// ruled out.
	initial     chan struct{}
	initialOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Machine) {
		m.logger = l
	}
}

// WithID sets the machine identifier used in log fields.
func WithID(id string) Option {
	return func(m *Machine) {
		if id != "" {
			m.id = id
		}
	}
}

// New creates a Machine. The sender carries both lsp traffic for the widget
// and, when evaluator is nil, evaluation requests.
func New(cfg Config, sender transport.Sender, evaluator Evaluator, publish Publisher, opts ...Option) *Machine {
	m := &Machine{
		id:      uuid.New().String(),
		cfg:     cfg,
		publish: publish,
		state:   State{Formula: cfg.Formula},
		context: cfg.Context,
		initial: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger).WithComponent("editor").WithField("bridge", m.id)

	if evaluator == nil {
		evaluator = eval.NewCoordinator(sender, m.logger)
	}
	m.evaluator = evaluator
	m.processor = lsp.NewProcessor(sender, m.logger)
	if m.publish == nil {
		m.publish = func(State) {}
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// ID returns the machine identifier.
func (m *Machine) ID() string {
	return m.id
}

// Processor returns the message processor handed to the widget.
func (m *Machine) Processor() lsp.MessageProcessor {
	return m.processor
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Context returns the context snapshot used for new evaluations.
func (m *Machine) Context() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.context
}

// SetContext replaces the context used by evaluations started from now on.
// Evaluations already in flight keep the snapshot they started with.
func (m *Machine) SetContext(ctx string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.context = ctx
}

// DocumentURI returns the document URI the widget uses for its session.
func (m *Machine) DocumentURI() string {
	return DocumentScheme + "?context=" + url.QueryEscape(m.Context())
}

// MinLines returns the minimum visible line count.
func (m *Machine) MinLines() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return max(m.cfg.MinLines, 1)
}

// MaxLines returns the maximum visible line count.
func (m *Machine) MaxLines() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return max(m.cfg.MaxLines, 1)
}

// SetLineBounds updates the visible line counts.
func (m *Machine) SetLineBounds(minLines, maxLines int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.MinLines = minLines
	m.cfg.MaxLines = maxLines
}

// Start schedules the initial evaluation when the formula is non-empty.
// Calling Start more than once has no further effect.
func (m *Machine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started || m.closed {
		return
	}
	m.started = true

	if m.state.Formula == "" {
		m.markInitial()
		return
	}
	m.timer = time.AfterFunc(m.cfg.InitialEvalDelay, m.initialEvaluation)
}

func (m *Machine) initialEvaluation() {
	m.mu.Lock()
	defer m.markInitial()
	if m.closed {
		m.mu.Unlock()
		return
	}
	req := eval.Request{Context: m.context, Expression: m.state.Formula}
	seq := m.nextSeq()
	m.wg.Add(1)
	m.mu.Unlock()

	m.logger.Debug("initial evaluation of %q", req.Expression)
	m.launch(seq, req)
}

// OnChange handles a text change from the widget. The new formula is
// published before its evaluation starts.
func (m *Machine) OnChange(newValue string) {
	m.pubMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.pubMu.Unlock()
		return
	}
	m.state.Formula = newValue
	snapshot := m.state
	req := eval.Request{Context: m.context, Expression: newValue}
	seq := m.nextSeq()
	m.wg.Add(1)
	m.mu.Unlock()

	m.publish(snapshot)
	m.pubMu.Unlock()

	m.launch(seq, req)
}

// Wait blocks until every evaluation started so far has been applied or
// dropped. It does not wait for a still-pending initial evaluation timer and
// must not race with OnChange.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Flush launches a still-scheduled initial evaluation immediately, then
// waits like Wait. It must not race with OnChange.
func (m *Machine) Flush() {
	m.mu.Lock()
	started := m.started
	stopped := m.timer != nil && m.timer.Stop()
	m.mu.Unlock()

	if stopped {
		m.initialEvaluation()
	}
	if started {
		<-m.initial
	}
	m.wg.Wait()
}

// Close stops scheduled work, cancels in-flight evaluations and waits for
// them to finish. No state is published after Close returns.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.timer == nil || m.timer.Stop() {
		m.markInitial()
	}
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()

	// Wait out a publication started by OnChange before closed was set.
	m.pubMu.Lock()
	m.pubMu.Unlock()
}

func (m *Machine) markInitial() {
	m.initialOnce.Do(func() { close(m.initial) })
}

// nextSeq must be called with mu held.
func (m *Machine) nextSeq() uint64 {
	m.seq++
	return m.seq
}

// launch expects the caller to have added to wg while holding mu.
func (m *Machine) launch(seq uint64, req eval.Request) {
	go func() {
		defer m.wg.Done()

		out, err := m.evaluator.Evaluate(m.ctx, req)
		if err != nil {
			m.logger.Warn("evaluation of %q produced no outcome: %v", req.Expression, err)
			return
		}
		m.apply(seq, out)
	}()
}

func (m *Machine) apply(seq uint64, out eval.Outcome) {
	m.pubMu.Lock()
	defer m.pubMu.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if latest := m.seq; m.cfg.DiscardStale && seq != latest {
		m.mu.Unlock()
		m.logger.Debug("discarding stale evaluation %d (latest %d)", seq, latest)
		return
	}
	next := WithOutcome(m.state.Formula, out)
	m.state = next
	m.mu.Unlock()

	m.publish(next)
}
