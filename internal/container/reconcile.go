// Package container resolves host configuration into an editor session and
// republishes editor state to the host.
package container

// DefaultLineCount is used when the host supplies no line bounds.
const DefaultLineCount = 3

// Params are the configuration values supplied by the host platform.
type Params struct {
	// ServiceURL is the formula-language service base URL. Required.
	ServiceURL string
	// Formula is the initial formula text.
	Formula string
	// FormulaContext is an explicit serialized context. It takes precedence
	// over a context derived from the current record.
	FormulaContext string
	// MinLines and MaxLines bound the editor height. Zero means default.
	MinLines int
	MaxLines int
	// EntityName and EntityID identify the host record. When empty they are
	// read from the page URL ("etn" and "id" query parameters).
	EntityName string
	EntityID   string
}

// View is what the container presents.
type View int

const (
	// ViewNoEndpoint blocks the editor because no service URL is configured.
	ViewNoEndpoint View = iota
	// ViewLoadingContext blocks the editor until a context is available.
	ViewLoadingContext
	// ViewEditor shows the mounted editor.
	ViewEditor
)

// String returns the placeholder text or "editor".
func (v View) String() string {
	switch v {
	case ViewNoEndpoint:
		return "No LSP endpoint provided."
	case ViewLoadingContext:
		return "Loading record context ..."
	case ViewEditor:
		return "editor"
	default:
		return "unknown"
	}
}

// Action tells the container how to move from one snapshot to the next.
type Action int

const (
	ActionNone Action = iota
	// ActionMount creates the editor session.
	ActionMount
	// ActionRemount replaces the session because the service URL changed.
	ActionRemount
	// ActionUnmount discards the session.
	ActionUnmount
	// ActionUpdate pushes context or line bounds into the mounted session.
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionMount:
		return "mount"
	case ActionRemount:
		return "remount"
	case ActionUnmount:
		return "unmount"
	case ActionUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Snapshot is the resolved configuration the container acts on.
type Snapshot struct {
	View       View
	ServiceURL string
	Formula    string
	Context    string
	MinLines   int
	MaxLines   int
}

// Reconcile derives the next snapshot from the previous one, the host
// parameters and the record-derived context (empty if not yet available).
// It is pure and deterministic.
func Reconcile(prev Snapshot, p Params, recordContext string) (Snapshot, Action) {
	next := Snapshot{
		ServiceURL: p.ServiceURL,
		Formula:    p.Formula,
		Context:    resolveContext(p.FormulaContext, recordContext),
		MinLines:   orDefault(p.MinLines),
		MaxLines:   orDefault(p.MaxLines),
	}

	switch {
	case next.ServiceURL == "":
		next.View = ViewNoEndpoint
	case next.Context == "":
		next.View = ViewLoadingContext
	default:
		next.View = ViewEditor
	}

	mounted := prev.View == ViewEditor
	switch {
	case next.View != ViewEditor && mounted:
		return next, ActionUnmount
	case next.View != ViewEditor:
		return next, ActionNone
	case !mounted:
		return next, ActionMount
	case next.ServiceURL != prev.ServiceURL:
		return next, ActionRemount
	}

	// The widget owns the text once mounted; later formula props are ignored.
	next.Formula = prev.Formula
	if next.Context != prev.Context || next.MinLines != prev.MinLines || next.MaxLines != prev.MaxLines {
		return next, ActionUpdate
	}
	return next, ActionNone
}

func resolveContext(explicit, record string) string {
	if explicit != "" {
		return explicit
	}
	return record
}

func orDefault(n int) int {
	if n <= 0 {
		return DefaultLineCount
	}
	return n
}
