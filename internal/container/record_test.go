package container

import (
	"context"
	"errors"
	"testing"
)

func TestParsePageURL(t *testing.T) {
	tests := []struct {
		raw      string
		expected map[string]string
	}{
		{"https://h/main.aspx?etn=account&id=42", map[string]string{"etn": "account", "id": "42"}},
		{"https://h/main.aspx", map[string]string{}},
		{"https://h/main.aspx?", map[string]string{}},
		{"?a=1&a=2", map[string]string{"a": "1"}},
		{"?flag&x=%7Bid%7D#frag", map[string]string{"flag": "", "x": "{id}"}},
		{"?bad=%zz", map[string]string{"bad": "%zz"}},
	}

	for _, tt := range tests {
		got := ParsePageURL(tt.raw)
		if len(got) != len(tt.expected) {
			t.Errorf("ParsePageURL(%q) = %v, expected %v", tt.raw, got, tt.expected)
			continue
		}
		for k, v := range tt.expected {
			if got[k] != v {
				t.Errorf("ParsePageURL(%q)[%q] = %q, expected %q", tt.raw, k, got[k], v)
			}
		}
	}
}

func TestRecordContext(t *testing.T) {
	src := RecordSourceFunc(func(ctx context.Context, entity, id string) (map[string]any, error) {
		return map[string]any{"name": "Contoso", "revenue": 1000}, nil
	})

	got, err := RecordContext(context.Background(), src, "account", "1")
	if err != nil {
		t.Fatal(err)
	}
	if got != `{"name":"Contoso","revenue":1000}` {
		t.Errorf("RecordContext() = %s", got)
	}
}

func TestRecordContext_Errors(t *testing.T) {
	failing := RecordSourceFunc(func(ctx context.Context, entity, id string) (map[string]any, error) {
		return nil, errors.New("not found")
	})
	if _, err := RecordContext(context.Background(), failing, "account", "1"); err == nil {
		t.Error("expected retrieval error")
	}

	empty := RecordSourceFunc(func(ctx context.Context, entity, id string) (map[string]any, error) {
		return nil, nil
	})
	got, err := RecordContext(context.Background(), empty, "account", "1")
	if err != nil || got != "{}" {
		t.Errorf("RecordContext(nil record) = %q, %v", got, err)
	}
}
