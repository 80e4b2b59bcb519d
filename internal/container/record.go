package container

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// RecordSource is the host's object-retrieval capability.
type RecordSource interface {
	RetrieveRecord(ctx context.Context, entityName, id string) (map[string]any, error)
}

// RecordSourceFunc adapts a function to RecordSource.
type RecordSourceFunc func(ctx context.Context, entityName, id string) (map[string]any, error)

// RetrieveRecord calls f.
func (f RecordSourceFunc) RetrieveRecord(ctx context.Context, entityName, id string) (map[string]any, error) {
	return f(ctx, entityName, id)
}

// RecordContext retrieves a record and serializes it as a JSON object.
func RecordContext(ctx context.Context, src RecordSource, entityName, id string) (string, error) {
	record, err := src.RetrieveRecord(ctx, entityName, id)
	if err != nil {
		return "", fmt.Errorf("retrieve %s %s: %w", entityName, id, err)
	}
	if record == nil {
		record = map[string]any{}
	}
	b, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode %s %s: %w", entityName, id, err)
	}
	return string(b), nil
}

// ParsePageURL returns the query parameters of a page URL, keeping the
// first value of each key. Malformed input yields whatever could be parsed.
func ParsePageURL(raw string) map[string]string {
	params := make(map[string]string)

	_, query, ok := strings.Cut(raw, "?")
	if !ok || query == "" {
		return params
	}
	if i := strings.IndexByte(query, '#'); i >= 0 {
		query = query[:i]
	}

	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		if _, seen := params[key]; !seen {
			params[key] = value
		}
	}
	return params
}
