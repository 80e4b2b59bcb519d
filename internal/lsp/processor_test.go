package lsp

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dshills/fxbridge/internal/transport"
)

func TestProcessor_LastListenerWins(t *testing.T) {
	sender := &fakeSender{resp: okBody(`["m1"]`)}
	p := NewProcessor(sender, nil)

	first, second := &collector{}, &collector{}
	p.AddListener(first.listen)
	p.SendAsync(context.Background(), "a")

	p.AddListener(second.listen)
	p.SendAsync(context.Background(), "b")

	if !reflect.DeepEqual(first.got(), []string{"m1"}) {
		t.Errorf("first listener got %q, expected only the message sent before replacement", first.got())
	}
	if !reflect.DeepEqual(second.got(), []string{"m1"}) {
		t.Errorf("second listener got %q", second.got())
	}
}

func TestProcessor_DisposeIsNoop(t *testing.T) {
	sender := &fakeSender{resp: okBody(`["m"]`)}
	p := NewProcessor(sender, nil)

	old, current := &collector{}, &collector{}
	oldHandle := p.AddListener(old.listen)
	currentHandle := p.AddListener(current.listen)

	oldHandle.Dispose()
	p.SendAsync(context.Background(), "x")
	if len(current.got()) != 1 {
		t.Errorf("current listener should still receive after old dispose, got %q", current.got())
	}

	currentHandle.Dispose()
	p.SendAsync(context.Background(), "y")
	if len(current.got()) != 2 {
		t.Errorf("dispose of current listener should not unsubscribe, got %q", current.got())
	}
	if len(old.got()) != 0 {
		t.Errorf("replaced listener received %q", old.got())
	}
}

func TestProcessor_NoListener(t *testing.T) {
	sender := &fakeSender{resp: okBody(`["dropped"]`)}
	p := NewProcessor(sender, nil)

	if err := p.SendAsync(context.Background(), "x"); err != nil {
		t.Errorf("SendAsync() error = %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "x" {
		t.Errorf("sent = %q", sender.sent)
	}
}

func TestProcessor_ListenerReregistersDuringDelivery(t *testing.T) {
	sender := &fakeSender{resp: okBody(`["a","b","c"]`)}
	p := NewProcessor(sender, nil)

	remounted := &collector{}
	var firstCalls int
	p.AddListener(func(m string) {
		firstCalls++
		p.AddListener(remounted.listen)
	})

	p.SendAsync(context.Background(), "x")

	if firstCalls != 1 {
		t.Errorf("first listener called %d times, expected 1", firstCalls)
	}
	if !reflect.DeepEqual(remounted.got(), []string{"b", "c"}) {
		t.Errorf("remounted listener got %q, expected [b c]", remounted.got())
	}
}

// replySender answers each payload from a fixed table.
type replySender struct {
	mu      sync.Mutex
	replies map[string]string
	sent    []string
}

func (r *replySender) Send(ctx context.Context, endpoint, payload string) (*transport.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, payload)
	return okBody(r.replies[payload]), nil
}

func TestProcessor_ListenerSendsFromCallback(t *testing.T) {
	sender := &replySender{replies: map[string]string{
		"open":         `["server-request","diagnostics"]`,
		"client-reply": `["ack"]`,
	}}
	p := NewProcessor(sender, nil)

	c := &collector{}
	p.AddListener(func(m string) {
		c.listen(m)
		if m == "server-request" {
			p.SendAsync(context.Background(), "client-reply")
		}
	})

	done := make(chan struct{})
	go func() {
		p.SendAsync(context.Background(), "open")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("SendAsync from inside the listener did not return")
	}

	if !reflect.DeepEqual(sender.sent, []string{"open", "client-reply"}) {
		t.Errorf("sent = %q", sender.sent)
	}
	expected := []string{"server-request", "diagnostics", "ack"}
	if !reflect.DeepEqual(c.got(), expected) {
		t.Errorf("delivered %q, expected %q", c.got(), expected)
	}
}

func TestRelay_ConcurrentBatchesStayWhole(t *testing.T) {
	sender := &replySender{replies: map[string]string{
		"a": `["a1","a2","a3"]`,
		"b": `["b1","b2","b3"]`,
	}}
	c := &collector{}
	relay := NewRelay(sender, c.listen)

	var wg sync.WaitGroup
	for _, msg := range []string{"a", "b"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.SendAsync(context.Background(), msg)
		}()
	}
	wg.Wait()

	// A batch queued behind a running drain is delivered before that drain returns.
	got := c.got()
	if len(got) != 6 {
		t.Fatalf("delivered %q, expected six messages", got)
	}
	first, second := got[:3], got[3:]
	if first[0][0] == 'b' {
		first, second = second, first
	}
	if !reflect.DeepEqual(first, []string{"a1", "a2", "a3"}) || !reflect.DeepEqual(second, []string{"b1", "b2", "b3"}) {
		t.Errorf("batches interleaved: %q", got)
	}
}
