package config

import (
	"os"
	"strings"
)

// EnvLoader loads configuration from environment variables.
type EnvLoader struct {
	prefix  string            // Environment variable prefix (e.g., "FXBRIDGE_")
	mapping map[string]string // Env var -> config path
	environ func() []string
}

// NewEnvLoader creates a new environment variable loader.
// The prefix should include the trailing underscore (e.g., "FXBRIDGE_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: defaultEnvMapping(),
		environ: os.Environ,
	}
}

// defaultEnvMapping returns the shorthand variables that don't follow the
// SECTION_SETTING convention.
func defaultEnvMapping() map[string]string {
	return map[string]string{
		"FXBRIDGE_SERVICE_URL":     "service.base_url",
		"FXBRIDGE_FORMULA":         "editor.formula",
		"FXBRIDGE_FORMULA_CONTEXT": "editor.formula_context",
		"FXBRIDGE_LOG_LEVEL":       "logging.level",
		"FXBRIDGE_LOG_FORMAT":      "logging.format",
		"FXBRIDGE_ADDR":            "server.addr",
	}
}

// Load reads environment variables and returns a configuration map.
// Values are kept as strings; decoding converts them per setting.
// Empty string values are treated as valid values, not as unset.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)

	for _, env := range l.environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}

		path, mapped := l.mapping[name]
		if !mapped {
			// FXBRIDGE_EDITOR_MIN_LINES -> editor.min_lines
			path = l.envToPath(name)
		}
		if path == "" {
			continue
		}
		setByPath(config, path, value)
	}

	return config, nil
}

// AddMapping adds a custom environment variable mapping.
func (l *EnvLoader) AddMapping(envVar, configPath string) {
	l.mapping[envVar] = configPath
}

// envToPath converts FXBRIDGE_EDITOR_MIN_LINES to editor.min_lines.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.ToLower(strings.TrimPrefix(env, l.prefix))
	section, setting, ok := strings.Cut(name, "_")
	if !ok || section == "" || setting == "" {
		return ""
	}
	return section + "." + setting
}
