package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/fxbridge/internal/logging"
)

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 3, cfg.Editor.MinLines)
	assert.Equal(t, 3, cfg.Editor.MaxLines)
	assert.Equal(t, 100*time.Millisecond, cfg.Editor.InitialEvalDelay)
	assert.True(t, cfg.Editor.DiscardStale)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFileFS_Formats(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/c.toml", `
[service]
base_url = "http://localhost:8080/"
request_timeout = "5s"

[editor]
formula = "1+1"
min_lines = 2
max_lines = 8
`)
	memfs.AddFile("/c.yaml", `
service:
  base_url: http://localhost:8080/
  request_timeout: 5s
editor:
  formula: "1+1"
  min_lines: 2
  max_lines: 8
`)
	memfs.AddFile("/c.json", `{
  "service": {"base_url": "http://localhost:8080/", "request_timeout": "5s"},
  "editor": {"formula": "1+1", "min_lines": 2, "max_lines": 8}
}`)

	for _, path := range []string{"/c.toml", "/c.yaml", "/c.json"} {
		t.Run(path, func(t *testing.T) {
			values, err := LoadFileFS(memfs, path)
			require.NoError(t, err)

			cfg := Default()
			require.NoError(t, cfg.apply(values))
			assert.Equal(t, "http://localhost:8080/", cfg.Service.BaseURL)
			assert.Equal(t, 5*time.Second, cfg.Service.RequestTimeout)
			assert.Equal(t, "1+1", cfg.Editor.Formula)
			assert.Equal(t, 2, cfg.Editor.MinLines)
			assert.Equal(t, 8, cfg.Editor.MaxLines)
		})
	}
}

func TestLoadFileFS_Missing(t *testing.T) {
	values, err := LoadFileFS(NewMemFS(), "/missing.toml")
	assert.NoError(t, err)
	assert.Nil(t, values)
}

func TestLoadFileFS_UnsupportedFormat(t *testing.T) {
	_, err := LoadFileFS(NewMemFS(), "/config.ini")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadFileFS_ParseError(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/bad.toml", "[service\nbase_url = ")

	_, err := LoadFileFS(memfs, "/bad.toml")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "/bad.toml", perr.Path)
}

func TestApply_ContextTable(t *testing.T) {
	memfs := NewMemFS()
	memfs.AddFile("/c.yaml", `
editor:
  formula_context:
    name: Contoso
`)
	values, err := LoadFileFS(memfs, "/c.yaml")
	require.NoError(t, err)

	cfg := Default()
	require.NoError(t, cfg.apply(values))
	assert.JSONEq(t, `{"name":"Contoso"}`, cfg.Editor.FormulaContext)
}

func TestApply_DurationMilliseconds(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.apply(map[string]any{
		"editor": map[string]any{"initial_eval_delay": int64(250)},
	}))
	assert.Equal(t, 250*time.Millisecond, cfg.Editor.InitialEvalDelay)
}

func TestApply_TypeError(t *testing.T) {
	cfg := Default()
	err := cfg.apply(map[string]any{
		"editor": map[string]any{"min_lines": "many"},
	})
	var terr *TypeError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "editor.min_lines", terr.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		path   string
	}{
		{"negative min", func(c *Config) { c.Editor.MinLines = -1 }, "editor.min_lines"},
		{"negative max", func(c *Config) { c.Editor.MaxLines = -1 }, "editor.max_lines"},
		{"min above max", func(c *Config) { c.Editor.MinLines = 9; c.Editor.MaxLines = 2 }, "editor.min_lines"},
		{"negative delay", func(c *Config) { c.Editor.InitialEvalDelay = -time.Second }, "editor.initial_eval_delay"},
		{"negative timeout", func(c *Config) { c.Service.RequestTimeout = -time.Second }, "service.request_timeout"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			assert.True(t, errors.Is(err, ErrValidationFailed))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.path, verr.Path)
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "fxbridge.toml", `
[service]
base_url = "http://file/"

[editor]
formula = "from file"
max_lines = 5
`)
	t.Setenv("FXBRIDGE_SERVICE_URL", "http://env/")
	t.Setenv("FXBRIDGE_EDITOR_MAX_LINES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://env/", cfg.Service.BaseURL)
	assert.Equal(t, "from file", cfg.Editor.Formula)
	assert.Equal(t, 7, cfg.Editor.MaxLines)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Editor, cfg.Editor)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeFile(t, "fxbridge.json", `{"editor": {"min_lines": 6, "max_lines": 2}}`)
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Service.BaseURL = "http://svc/"
	cfg.Editor.Formula = "1+1"
	cfg.Editor.FormulaContext = "{}"
	cfg.Editor.EntityName = "account"
	cfg.Editor.EntityID = "1"
	cfg.Editor.DiscardStale = false
	cfg.Logging.Level = "debug"
	cfg.Logging.Format = "json"

	p := cfg.Params()
	assert.Equal(t, "http://svc/", p.ServiceURL)
	assert.Equal(t, "1+1", p.Formula)
	assert.Equal(t, "{}", p.FormulaContext)
	assert.Equal(t, "account", p.EntityName)
	assert.Equal(t, "1", p.EntityID)

	ed := cfg.EditorConfig()
	assert.False(t, ed.DiscardStale)
	assert.Equal(t, cfg.Editor.InitialEvalDelay, ed.InitialEvalDelay)

	lc := cfg.LoggingConfig()
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, logging.FormatJSON, lc.Format)
}

func TestDeepMerge(t *testing.T) {
	dst := map[string]any{
		"service": map[string]any{"base_url": "a", "request_timeout": "1s"},
		"keep":    1,
	}
	src := map[string]any{
		"service": map[string]any{"base_url": "b"},
	}

	got := DeepMerge(dst, src)
	assert.Equal(t, map[string]any{
		"service": map[string]any{"base_url": "b", "request_timeout": "1s"},
		"keep":    1,
	}, got)
}
