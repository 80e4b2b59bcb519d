package devserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/file"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/fxbridge/internal/logging"
	"github.com/dshills/fxbridge/internal/lsp"
)

// handleLSP answers one JSON-RPC message with a JSON array of serialized
// reply messages. Notifications that need no reply get an empty body.
func (s *Server) handleLSP(w http.ResponseWriter, body string, log *logging.Logger) {
	if !gjson.Valid(body) || !gjson.Parse(body).IsObject() {
		log.Warn("malformed lsp message")
		s.reply(w, log, lsp.ErrorResponse{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &lsp.RPCError{Code: lsp.CodeParseError, Message: "parse error"},
		})
		return
	}

	var req lsp.Request
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		s.reply(w, log, lsp.ErrorResponse{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &lsp.RPCError{Code: lsp.CodeInvalidRequest, Message: err.Error()},
		})
		return
	}
	log.Debug("lsp %s", req.Method)

	switch req.Method {
	case lsp.MethodInitialize:
		s.reply(w, log, lsp.Response{JSONRPC: "2.0", ID: req.ID, Result: s.initializeResult()})

	case lsp.MethodShutdown:
		s.reply(w, log, lsp.Response{JSONRPC: "2.0", ID: req.ID, Result: nil})

	case lsp.MethodDidOpen:
		var params lsp.DidOpenTextDocumentParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.invalidParams(w, log, &req, err)
			return
		}
		doc := params.TextDocument
		s.setDocument(string(doc.URI), doc.Text)
		s.reply(w, log, diagnosticsNotification(doc.URI, doc.Version, doc.Text))

	case lsp.MethodDidChange:
		var params lsp.DidChangeTextDocumentParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.invalidParams(w, log, &req, err)
			return
		}
		uri := params.TextDocument.URI
		text, _ := s.Document(string(uri))
		if n := len(params.ContentChanges); n > 0 {
			text = params.ContentChanges[n-1].Text
		}
		s.setDocument(string(uri), text)
		s.reply(w, log, diagnosticsNotification(uri, params.TextDocument.Version, text))

	case lsp.MethodDidClose:
		s.mu.Lock()
		delete(s.docs, gjson.Get(body, "params.textDocument.uri").String())
		s.mu.Unlock()
		s.reply(w, log)

	default:
		if req.IsNotification() {
			s.reply(w, log)
			return
		}
		s.reply(w, log, lsp.ErrorResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &lsp.RPCError{Code: lsp.CodeMethodNotFound, Message: "method not found: " + req.Method},
		})
	}
}

func (s *Server) initializeResult() lsp.InitializeResult {
	return lsp.InitializeResult{
		Capabilities: lsp.ServerCapabilities{
			TextDocumentSync: lsp.TextDocumentSyncKindFull,
			SignatureHelpProvider: &lsp.SignatureHelpOptions{
				TriggerCharacters: []string{"(", ","},
			},
		},
		ServerInfo: &lsp.ServerInfo{Name: Name, Version: s.version},
	}
}

func (s *Server) invalidParams(w http.ResponseWriter, log *logging.Logger, req *lsp.Request, err error) {
	if req.IsNotification() {
		log.Warn("invalid %s params: %v", req.Method, err)
		s.reply(w, log)
		return
	}
	s.reply(w, log, lsp.ErrorResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Error:   &lsp.RPCError{Code: lsp.CodeInvalidParams, Message: err.Error()},
	})
}

func (s *Server) setDocument(uri, text string) {
	s.mu.Lock()
	s.docs[uri] = text
	s.mu.Unlock()
}

// reply writes msgs as a JSON array of serialized messages. No messages
// yields an empty body.
func (s *Server) reply(w http.ResponseWriter, log *logging.Logger, msgs ...any) {
	if len(msgs) == 0 {
		writeJSON(w, "")
		return
	}

	batch := "[]"
	for _, msg := range msgs {
		b, err := json.Marshal(msg)
		if err != nil {
			log.Error("encode reply: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if batch, err = sjson.Set(batch, "-1", string(b)); err != nil {
			log.Error("build reply batch: %v", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, batch)
}

// diagnosticsNotification compiles text against the context carried in the
// document URI and reports compile errors.
func diagnosticsNotification(uri lsp.DocumentURI, version int, text string) lsp.Notification {
	diags := []lsp.Diagnostic{}
	if d := Diagnose(text, contextFromURI(string(uri))); d != nil {
		diags = append(diags, *d)
	}
	return lsp.Notification{
		JSONRPC: "2.0",
		Method:  lsp.MethodPublishDiagnostics,
		Params: lsp.PublishDiagnosticsParams{
			URI:         uri,
			Version:     version,
			Diagnostics: diags,
		},
	}
}

// Diagnose compiles text and returns the first compile error as a
// diagnostic, or nil. With a context, unknown names are errors.
func Diagnose(text, contextJSON string) *lsp.Diagnostic {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	opts := []expr.Option{expr.AllowUndefinedVariables()}
	if env, err := parseEnv(contextJSON); err == nil && env != nil {
		opts = []expr.Option{expr.Env(env)}
	}

	_, err := expr.Compile(text, opts...)
	if err == nil {
		return nil
	}

	diag := &lsp.Diagnostic{
		Severity: lsp.DiagnosticSeverityError,
		Source:   Name,
		Message:  err.Error(),
	}
	var ferr *file.Error
	if errors.As(err, &ferr) {
		diag.Message = ferr.Message
		line := max(ferr.Line-1, 0)
		col := max(ferr.Column, 0)
		diag.Range = lsp.Range{
			Start: lsp.Position{Line: line, Character: col},
			End:   lsp.Position{Line: line, Character: col + 1},
		}
	}
	return diag
}

// contextFromURI returns the context query parameter of a document URI.
func contextFromURI(uri string) string {
	_, query, ok := strings.Cut(uri, "?")
	if !ok {
		return ""
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return values.Get("context")
}
