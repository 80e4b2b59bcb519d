package container

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/fxbridge/internal/editor"
	"github.com/dshills/fxbridge/internal/transport"
)

func fastEditorConfig() editor.Config {
	cfg := editor.DefaultConfig()
	cfg.InitialEvalDelay = 5 * time.Millisecond
	return cfg
}

// countingSource counts record retrievals.
type countingSource struct {
	calls  atomic.Int32
	record map[string]any
	err    error
}

func (s *countingSource) RetrieveRecord(ctx context.Context, entity, id string) (map[string]any, error) {
	s.calls.Add(1)
	return s.record, s.err
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestContainer_NoEndpoint(t *testing.T) {
	var senders atomic.Int32
	src := &countingSource{record: map[string]any{"name": "x"}}
	c := New(
		WithRecordSource(src),
		WithPageURL("https://host/main.aspx?etn=account&id=42"),
		WithSenderFactory(func(string) transport.Sender {
			senders.Add(1)
			return nil
		}),
	)
	defer c.Destroy()

	view := c.Update(context.Background(), Params{Formula: "1+1", FormulaContext: "{}"})
	if view != ViewNoEndpoint {
		t.Errorf("view = %v, expected ViewNoEndpoint", view)
	}
	if senders.Load() != 0 || src.calls.Load() != 0 {
		t.Errorf("expected no calls, got %d senders and %d record retrievals", senders.Load(), src.calls.Load())
	}
	if c.Editor() != nil {
		t.Error("editor mounted without endpoint")
	}
}

func TestContainer_MountsAndPublishes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"2"}`))
	}))
	defer srv.Close()

	var notified atomic.Int32
	c := New(WithEditorConfig(fastEditorConfig()), WithNotify(func() { notified.Add(1) }))
	defer c.Destroy()

	view := c.Update(context.Background(), Params{ServiceURL: srv.URL + "/", Formula: "1+1", FormulaContext: "{}"})
	if view != ViewEditor {
		t.Fatalf("view = %v", view)
	}

	waitFor(t, func() bool { return notified.Load() > 0 })
	expected := editor.State{Formula: "1+1", EvaluateValue: "2"}
	if got := c.Outputs(); got != expected {
		t.Errorf("Outputs() = %+v, expected %+v", got, expected)
	}
}

func TestContainer_RecordContextFromPageURL(t *testing.T) {
	var gotEntity, gotID string
	var mu sync.Mutex
	src := RecordSourceFunc(func(ctx context.Context, entity, id string) (map[string]any, error) {
		mu.Lock()
		gotEntity, gotID = entity, id
		mu.Unlock()
		return map[string]any{"name": "Contoso"}, nil
	})

	c := New(
		WithRecordSource(src),
		WithPageURL("https://host/main.aspx?appid=1&etn=account&id=abc-123"),
		WithEditorConfig(fastEditorConfig()),
		WithSenderFactory(func(string) transport.Sender { return nopSender{} }),
	)
	defer c.Destroy()

	view := c.Update(context.Background(), Params{ServiceURL: "http://svc/"})
	if view != ViewEditor {
		t.Fatalf("view = %v", view)
	}
	if gotEntity != "account" || gotID != "abc-123" {
		t.Errorf("retrieved %s/%s", gotEntity, gotID)
	}
	if ctx := c.Snapshot().Context; ctx != `{"name":"Contoso"}` {
		t.Errorf("context = %s", ctx)
	}
}

func TestContainer_LoadingWhileRecordUnavailable(t *testing.T) {
	src := &countingSource{err: errors.New("forbidden")}
	c := New(WithRecordSource(src), WithPageURL("https://host/?etn=a&id=1"))
	defer c.Destroy()

	view := c.Update(context.Background(), Params{ServiceURL: "http://svc/"})
	if view != ViewLoadingContext {
		t.Errorf("view = %v, expected loading", view)
	}

	c.Update(context.Background(), Params{ServiceURL: "http://svc/"})
	if src.calls.Load() != 2 {
		t.Errorf("expected retrieval retried on next update, got %d calls", src.calls.Load())
	}
}

func TestContainer_RecordDerivedOnce(t *testing.T) {
	src := &countingSource{record: map[string]any{"a": 1}}
	c := New(
		WithRecordSource(src),
		WithEditorConfig(fastEditorConfig()),
		WithSenderFactory(func(string) transport.Sender { return nopSender{} }),
	)
	defer c.Destroy()

	p := Params{ServiceURL: "http://svc/", EntityName: "account", EntityID: "1"}
	c.Update(context.Background(), p)
	c.Update(context.Background(), p)
	if src.calls.Load() != 1 {
		t.Errorf("record retrieved %d times, expected once", src.calls.Load())
	}
}

func TestContainer_RemountOnURLChange(t *testing.T) {
	c := New(
		WithEditorConfig(fastEditorConfig()),
		WithSenderFactory(func(string) transport.Sender { return nopSender{} }),
	)
	defer c.Destroy()

	c.Update(context.Background(), Params{ServiceURL: "http://a/", FormulaContext: "{}"})
	first := c.Editor()
	c.Update(context.Background(), Params{ServiceURL: "http://b/", FormulaContext: "{}"})
	second := c.Editor()

	if first == nil || second == nil || first == second {
		t.Errorf("expected a new editor after URL change")
	}
}

func TestContainer_ContextUpdatePushedToEditor(t *testing.T) {
	c := New(
		WithEditorConfig(fastEditorConfig()),
		WithSenderFactory(func(string) transport.Sender { return nopSender{} }),
	)
	defer c.Destroy()

	c.Update(context.Background(), Params{ServiceURL: "http://a/", FormulaContext: "{}"})
	m := c.Editor()
	c.Update(context.Background(), Params{ServiceURL: "http://a/", FormulaContext: `{"x":1}`, MinLines: 2, MaxLines: 6})

	if c.Editor() != m {
		t.Fatal("context change should not remount")
	}
	if m.Context() != `{"x":1}` {
		t.Errorf("editor context = %s", m.Context())
	}
	if m.MinLines() != 2 || m.MaxLines() != 6 {
		t.Errorf("editor lines = %d..%d", m.MinLines(), m.MaxLines())
	}
}

func TestContainer_UnmountWhenEndpointRemoved(t *testing.T) {
	c := New(
		WithEditorConfig(fastEditorConfig()),
		WithSenderFactory(func(string) transport.Sender { return nopSender{} }),
	)

	c.Update(context.Background(), Params{ServiceURL: "http://a/", FormulaContext: "{}"})
	view := c.Update(context.Background(), Params{FormulaContext: "{}"})
	if view != ViewNoEndpoint || c.Editor() != nil {
		t.Errorf("expected unmount, view=%v editor=%v", view, c.Editor())
	}
	c.Destroy()
}

// nopSender answers every request with an empty 200.
type nopSender struct{}

func (nopSender) Send(ctx context.Context, endpoint, payload string) (*transport.Response, error) {
	return &transport.Response{StatusCode: http.StatusOK}, nil
}
