// Package devserver is a local formula-language service. It answers the
// lsp and eval endpoints the bridge talks to, evaluating formulas with
// expr-lang/expr, so the bridge can be exercised end to end.
package devserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/fxbridge/internal/logging"
	"github.com/dshills/fxbridge/internal/transport"
)

// MaxBodySize limits request bodies.
const MaxBodySize = 1 << 20

// Name is reported in the initialize result.
const Name = "fxbridge-devserver"

// Server serves the lsp and eval endpoints.
type Server struct {
	logger  *logging.Logger
	version string

	mu   sync.Mutex
	docs map[string]string // URI -> text
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a server.
func New(opts ...Option) *Server {
	s := &Server{
		docs: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).WithComponent("devserver")
	return s
}

// Handler returns the HTTP handler for both endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/"+transport.EndpointLSP, s.post(s.handleLSP))
	mux.HandleFunc("/"+transport.EndpointEval, s.post(s.handleEval))
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Document returns the last text received for uri.
func (s *Server) Document(uri string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[uri]
	return text, ok
}

type bodyHandler func(w http.ResponseWriter, body string, log *logging.Logger)

// post restricts h to POST, reads the body and tags the exchange with a
// request id.
func (s *Server) post(h bodyHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		reqID := uuid.NewString()
		w.Header().Set("X-Request-Id", reqID)
		log := s.logger.WithField("request", reqID)

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
		if err != nil {
			log.Warn("read body: %v", err)
			http.Error(w, "cannot read body", http.StatusBadRequest)
			return
		}
		log.Debug("%s %s", r.Method, r.URL.Path)
		h(w, string(body), log)
	}
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", transport.ContentType)
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, body)
}
