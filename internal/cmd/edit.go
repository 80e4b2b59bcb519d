package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/fxbridge/internal/config"
	"github.com/dshills/fxbridge/internal/container"
	"github.com/dshills/fxbridge/internal/editor"
	"github.com/dshills/fxbridge/internal/logging"
	"github.com/dshills/fxbridge/internal/lsp"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit a formula from stdin and print published states",
	Long: `Mount an editor session against the configured service and treat each
line read from stdin as the new formula text. Every published editor state
is written to stdout as one JSON object per line.

Examples:
  # Evaluate a formula against an explicit context
  echo 'price * qty' | fxbridge edit --service-url http://127.0.0.1:8080/ \
      --context '{"price": 2, "qty": 3}'

  # Also exchange language-protocol messages, printing replies to stderr
  fxbridge edit --lsp

  # Re-apply the config file whenever it changes
  fxbridge edit -c fxbridge.toml --watch`,
	Args: cobra.NoArgs,
	RunE: runEdit,
}

var (
	editServiceURL string
	editFormula    string
	editContext    string
	editWatch      bool
	editLSP        bool
)

func init() {
	rootCmd.AddCommand(editCmd)

	editCmd.Flags().StringVar(&editServiceURL, "service-url", "", "service base URL (overrides service.base_url)")
	editCmd.Flags().StringVar(&editFormula, "formula", "", "initial formula (overrides editor.formula)")
	editCmd.Flags().StringVar(&editContext, "context", "", "serialized context (overrides editor.formula_context)")
	editCmd.Flags().BoolVar(&editWatch, "watch", false, "reload the config file on change")
	editCmd.Flags().BoolVar(&editLSP, "lsp", false, "act as the editor widget and exchange lsp messages")
}

// editParams applies command-line overrides to the configured parameters.
func editParams(cfg *config.Config) container.Params {
	p := cfg.Params()
	if editServiceURL != "" {
		p.ServiceURL = editServiceURL
	}
	if editFormula != "" {
		p.Formula = editFormula
	}
	if editContext != "" {
		p.FormulaContext = editContext
	}
	return p
}

func runEdit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	states := newStateWriter(cmd.OutOrStdout())
	var c *container.Container
	c = container.New(
		container.WithEditorConfig(appCfg.EditorConfig()),
		container.WithRequestTimeout(appCfg.Service.RequestTimeout),
		container.WithPageURL(appCfg.Editor.PageURL),
		container.WithLogger(logger),
		container.WithNotify(func() { states.write(c.Outputs()) }),
	)
	defer c.Destroy()

	s := &editSession{
		ctx:       ctx,
		container: c,
		lsp:       editLSP,
		diag:      cmd.ErrOrStderr(),
		logger:    logger.WithComponent("edit"),
	}
	s.update(appCfg)

	if editWatch && cfgFile != "" {
		w, err := config.NewWatcher(cfgFile, s.update, config.WithWatcherLogger(logger))
		if err != nil {
			return fmt.Errorf("watch %s: %w", cfgFile, err)
		}
		defer w.Close()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				s.flush()
				return nil
			}
			s.edit(line)
		}
	}
}

// editSession plays the editor widget: it feeds edits to the mounted
// machine and, with lsp enabled, mirrors them as protocol messages.
type editSession struct {
	ctx       context.Context
	container *container.Container
	lsp       bool
	diag      io.Writer
	logger    *logging.Logger

	mu      sync.Mutex
	mounted *editor.Machine
	version int
	nextID  int
}

// update reconciles cfg and re-attaches the widget when the editor changed.
func (s *editSession) update(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	view := s.container.Update(s.ctx, editParams(cfg))
	if view != container.ViewEditor {
		fmt.Fprintln(s.diag, view)
	}

	m := s.container.Editor()
	if m == s.mounted {
		return
	}
	s.mounted = m
	s.version = 1
	if m != nil && s.lsp {
		s.attach(m)
	}
}

func (s *editSession) attach(m *editor.Machine) {
	m.Processor().AddListener(func(msg string) {
		fmt.Fprintf(s.diag, "lsp: %s\n", msg)
	})

	s.nextID++
	s.send(m, lsp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(fmt.Sprint(s.nextID)),
		Method:  lsp.MethodInitialize,
		Params:  json.RawMessage(`{}`),
	})
	s.send(m, lsp.Notification{
		JSONRPC: "2.0",
		Method:  lsp.MethodDidOpen,
		Params: lsp.DidOpenTextDocumentParams{
			TextDocument: lsp.TextDocumentItem{
				URI:        lsp.DocumentURI(m.DocumentURI()),
				LanguageID: "powerfx",
				Version:    s.version,
				Text:       m.State().Formula,
			},
		},
	})
}

func (s *editSession) edit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.mounted
	if m == nil {
		s.logger.Warn("no editor mounted, ignoring edit")
		return
	}
	m.OnChange(text)

	if !s.lsp {
		return
	}
	s.version++
	s.send(m, lsp.Notification{
		JSONRPC: "2.0",
		Method:  lsp.MethodDidChange,
		Params: lsp.DidChangeTextDocumentParams{
			TextDocument: lsp.VersionedTextDocumentIdentifier{
				TextDocumentIdentifier: lsp.TextDocumentIdentifier{URI: lsp.DocumentURI(m.DocumentURI())},
				Version:                s.version,
			},
			ContentChanges: []lsp.TextDocumentContentChangeEvent{{Text: text}},
		},
	})
}

// flush waits for the mounted editor's evaluations.
func (s *editSession) flush() {
	s.mu.Lock()
	m := s.mounted
	s.mu.Unlock()
	if m != nil {
		m.Flush()
	}
}

func (s *editSession) send(m *editor.Machine, msg any) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("encode lsp message: %v", err)
		return
	}
	// Failures are logged by the relay.
	_ = m.Processor().SendAsync(s.ctx, string(b))
}

// stateWriter writes states as JSON lines.
type stateWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newStateWriter(w io.Writer) *stateWriter {
	return &stateWriter{enc: json.NewEncoder(w)}
}

func (w *stateWriter) write(s editor.State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(s)
}
