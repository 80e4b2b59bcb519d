package config

import (
	"fmt"
	"time"

	"github.com/dshills/fxbridge/internal/container"
	"github.com/dshills/fxbridge/internal/editor"
	"github.com/dshills/fxbridge/internal/logging"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "FXBRIDGE_"

// Config is the resolved fxbridge configuration.
type Config struct {
	Service ServiceConfig
	Editor  EditorConfig
	Logging LoggingConfig
	Server  ServerConfig
}

// ServiceConfig locates the formula-language service.
type ServiceConfig struct {
	// BaseURL is the service base URL. Endpoint names are appended verbatim,
	// so it normally ends with "/".
	BaseURL string
	// RequestTimeout bounds each request. Zero means no timeout.
	RequestTimeout time.Duration
}

// EditorConfig configures the mounted editor.
type EditorConfig struct {
	Formula          string
	FormulaContext   string
	MinLines         int
	MaxLines         int
	InitialEvalDelay time.Duration
	DiscardStale     bool
	EntityName       string
	EntityID         string
	PageURL          string
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// ServerConfig configures the development service.
type ServerConfig struct {
	Addr string
}

// Default returns the built-in defaults.
func Default() *Config {
	ed := editor.DefaultConfig()
	return &Config{
		Editor: EditorConfig{
			MinLines:         container.DefaultLineCount,
			MaxLines:         container.DefaultLineCount,
			InitialEvalDelay: ed.InitialEvalDelay,
			DiscardStale:     ed.DiscardStale,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logging.FormatText),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
	}
}

// Load reads path (if it exists), applies FXBRIDGE_* environment overrides
// over it and decodes the result on top of the defaults. An empty path
// skips the file layer.
func Load(path string) (*Config, error) {
	var values map[string]any
	if path != "" {
		var err error
		values, err = LoadFile(path)
		if err != nil {
			return nil, err
		}
	}

	env, err := NewEnvLoader(EnvPrefix).Load()
	if err != nil {
		return nil, err
	}
	values = DeepMerge(values, env)

	cfg := Default()
	if err := cfg.apply(values); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistent values.
func (c *Config) Validate() error {
	if c.Editor.MinLines < 0 {
		return &ValidationError{Path: "editor.min_lines", Message: "must not be negative"}
	}
	if c.Editor.MaxLines < 0 {
		return &ValidationError{Path: "editor.max_lines", Message: "must not be negative"}
	}
	if c.Editor.MinLines > 0 && c.Editor.MaxLines > 0 && c.Editor.MinLines > c.Editor.MaxLines {
		return &ValidationError{
			Path:    "editor.min_lines",
			Message: fmt.Sprintf("%d exceeds max_lines %d", c.Editor.MinLines, c.Editor.MaxLines),
		}
	}
	if c.Editor.InitialEvalDelay < 0 {
		return &ValidationError{Path: "editor.initial_eval_delay", Message: "must not be negative"}
	}
	if c.Service.RequestTimeout < 0 {
		return &ValidationError{Path: "service.request_timeout", Message: "must not be negative"}
	}
	switch logging.Format(c.Logging.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return &ValidationError{Path: "logging.format", Message: fmt.Sprintf("unknown format %q", c.Logging.Format)}
	}
	return nil
}

// Params returns the host parameters the container reconciles against.
func (c *Config) Params() container.Params {
	return container.Params{
		ServiceURL:     c.Service.BaseURL,
		Formula:        c.Editor.Formula,
		FormulaContext: c.Editor.FormulaContext,
		MinLines:       c.Editor.MinLines,
		MaxLines:       c.Editor.MaxLines,
		EntityName:     c.Editor.EntityName,
		EntityID:       c.Editor.EntityID,
	}
}

// EditorConfig returns the template for mounted editors.
func (c *Config) EditorConfig() editor.Config {
	cfg := editor.DefaultConfig()
	cfg.InitialEvalDelay = c.Editor.InitialEvalDelay
	cfg.DiscardStale = c.Editor.DiscardStale
	return cfg
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(c.Logging.Level)
	cfg.Format = logging.Format(c.Logging.Format)
	return cfg
}

// apply decodes the recognized settings of values into c. Unknown keys are
// ignored.
func (c *Config) apply(values map[string]any) error {
	v := values
	return firstErr(
		setString(v, "service.base_url", &c.Service.BaseURL),
		setDuration(v, "service.request_timeout", &c.Service.RequestTimeout),

		setString(v, "editor.formula", &c.Editor.Formula),
		setContext(v, "editor.formula_context", &c.Editor.FormulaContext),
		setInt(v, "editor.min_lines", &c.Editor.MinLines),
		setInt(v, "editor.max_lines", &c.Editor.MaxLines),
		setDuration(v, "editor.initial_eval_delay", &c.Editor.InitialEvalDelay),
		setBool(v, "editor.discard_stale", &c.Editor.DiscardStale),
		setString(v, "editor.entity_name", &c.Editor.EntityName),
		setString(v, "editor.entity_id", &c.Editor.EntityID),
		setString(v, "editor.page_url", &c.Editor.PageURL),

		setString(v, "logging.level", &c.Logging.Level),
		setString(v, "logging.format", &c.Logging.Format),

		setString(v, "server.addr", &c.Server.Addr),
	)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
