package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileSystem is an abstraction for reading configuration files.
type FileSystem interface {
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Decoder parses configuration data into a nested map.
type Decoder func(data []byte) (map[string]any, error)

var decoders = map[string]Decoder{
	".toml": decodeTOML,
	".yaml": decodeYAML,
	".yml":  decodeYAML,
	".json": decodeJSON,
}

// LoadFile reads a configuration file from the OS file system.
func LoadFile(path string) (map[string]any, error) {
	return LoadFileFS(OSFS{}, path)
}

// LoadFileFS reads a configuration file, choosing the decoder by extension.
// Returns nil, nil if the file doesn't exist.
func LoadFileFS(fsys FileSystem, path string) (map[string]any, error) {
	decode, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) || err == fs.ErrNotExist {
			return nil, nil // File doesn't exist, not an error
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	values, err := decode(data)
	if err != nil {
		return nil, &ParseError{Path: path, Message: err.Error(), Err: err}
	}
	return values, nil
}

func decodeTOML(data []byte) (map[string]any, error) {
	var values map[string]any
	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func decodeYAML(data []byte) (map[string]any, error) {
	var values map[string]any
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func decodeJSON(data []byte) (map[string]any, error) {
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	return values, nil
}
