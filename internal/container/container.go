package container

import (
	"context"
	"sync"
	"time"

	"github.com/dshills/fxbridge/internal/editor"
	"github.com/dshills/fxbridge/internal/logging"
	"github.com/dshills/fxbridge/internal/transport"
)

// SenderFactory creates the transport used by a mounted editor.
type SenderFactory func(baseURL string) transport.Sender

// Container mounts an editor session for the current host parameters and
// republishes its state to the host.
type Container struct {
	records   RecordSource
	pageURL   string
	notify    func()
	logger    *logging.Logger
	newSender SenderFactory
	editorCfg editor.Config

	mu        sync.Mutex
	snap      Snapshot
	recordCtx string
	machine   *editor.Machine

	outMu   sync.Mutex
	outputs editor.State
}

// Option configures a Container.
type Option func(*Container)

// WithRecordSource sets the host's record retrieval capability.
func WithRecordSource(src RecordSource) Option {
	return func(c *Container) {
		c.records = src
	}
}

// WithPageURL sets the page URL entity and id are read from.
func WithPageURL(u string) Option {
	return func(c *Container) {
		c.pageURL = u
	}
}

// WithNotify sets the host's output-changed callback. It runs while an
// editor publication is in progress and may only call Outputs.
func WithNotify(fn func()) Option {
	return func(c *Container) {
		c.notify = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Container) {
		c.logger = l
	}
}

// WithSenderFactory overrides how the editor transport is built.
func WithSenderFactory(f SenderFactory) Option {
	return func(c *Container) {
		if f != nil {
			c.newSender = f
		}
	}
}

// WithEditorConfig sets the template for mounted editors. Formula, context
// and line bounds are always taken from the reconciled snapshot.
func WithEditorConfig(cfg editor.Config) Option {
	return func(c *Container) {
		c.editorCfg = cfg
	}
}

// WithRequestTimeout bounds each request of mounted editors. Zero means none.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Container) {
		c.newSender = func(baseURL string) transport.Sender {
			return transport.NewClient(baseURL, transport.WithTimeout(d), transport.WithLogger(c.logger))
		}
	}
}

// New creates a container. Nothing is mounted until Update.
func New(opts ...Option) *Container {
	c := &Container{
		notify:    func() {},
		editorCfg: editor.DefaultConfig(),
	}
	c.newSender = func(baseURL string) transport.Sender {
		return transport.NewClient(baseURL, transport.WithLogger(c.logger))
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.OrNop(c.logger).WithComponent("container")
	return c
}

// Update applies new host parameters and returns the resulting view.
func (c *Container) Update(ctx context.Context, p Params) View {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.ServiceURL != "" && p.FormulaContext == "" && c.recordCtx == "" {
		c.recordCtx = c.deriveRecordContext(ctx, p)
	}

	next, action := Reconcile(c.snap, p, c.recordCtx)
	c.logger.Debug("reconciled view=%q action=%s", next.View, action)

	switch action {
	case ActionMount:
		c.mount(next)
	case ActionRemount:
		c.unmount()
		c.mount(next)
	case ActionUnmount:
		c.unmount()
	case ActionUpdate:
		c.machine.SetContext(next.Context)
		c.machine.SetLineBounds(next.MinLines, next.MaxLines)
	}

	c.snap = next
	return next.View
}

// Snapshot returns the last reconciled snapshot.
func (c *Container) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Editor returns the mounted editor, or nil.
func (c *Container) Editor() *editor.Machine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine
}

// Outputs returns the most recently published editor state.
func (c *Container) Outputs() editor.State {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.outputs
}

// Destroy unmounts the editor.
func (c *Container) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unmount()
	c.snap = Snapshot{}
}

func (c *Container) deriveRecordContext(ctx context.Context, p Params) string {
	if c.records == nil {
		return ""
	}

	entity, id := p.EntityName, p.EntityID
	if entity == "" || id == "" {
		page := ParsePageURL(c.pageURL)
		if entity == "" {
			entity = page["etn"]
		}
		if id == "" {
			id = page["id"]
		}
	}
	if entity == "" || id == "" {
		return ""
	}

	recordCtx, err := RecordContext(ctx, c.records, entity, id)
	if err != nil {
		c.logger.Warn("record context unavailable: %v", err)
		return ""
	}
	return recordCtx
}

func (c *Container) mount(s Snapshot) {
	cfg := c.editorCfg
	cfg.Formula = s.Formula
	cfg.Context = s.Context
	cfg.MinLines = s.MinLines
	cfg.MaxLines = s.MaxLines

	m := editor.New(cfg, c.newSender(s.ServiceURL), nil, c.onState, editor.WithLogger(c.logger))
	c.logger.Info("mounted editor %s for %s", m.ID(), s.ServiceURL)
	m.Start()
	c.machine = m
}

func (c *Container) unmount() {
	if c.machine == nil {
		return
	}
	c.machine.Close()
	c.logger.Info("unmounted editor %s", c.machine.ID())
	c.machine = nil
}

func (c *Container) onState(s editor.State) {
	c.outMu.Lock()
	c.outputs = s
	c.outMu.Unlock()
	c.notify()
}
