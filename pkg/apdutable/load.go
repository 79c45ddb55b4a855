package apdutable

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for definition files that are neither TOML nor YAML.
var ErrUnsupportedFormat = errors.New("apdutable: unsupported definition format")

// definitionFile is the on-disk layout shared by both formats:
//
//	[[entry]]                     entry:
//	command = "00A40400..."       - command: "00A40400..."
//	response = "9000"               response: "9000"
type definitionFile struct {
	Entries []Entry `toml:"entry" yaml:"entry"`
}

// Load reads a definition file, choosing the decoder from the file extension.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("table load failed (%s): %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return ParseTOML(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// ParseTOML builds a table from a TOML definition document.
func ParseTOML(data []byte) (*Table, error) {
	var def definitionFile
	if _, err := toml.Decode(string(data), &def); err != nil {
		return nil, fmt.Errorf("table parse failed (toml): %w", err)
	}
	return New(def.Entries), nil
}

// ParseYAML builds a table from a YAML definition document.
func ParseYAML(data []byte) (*Table, error) {
	var def definitionFile
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("table parse failed (yaml): %w", err)
	}
	return New(def.Entries), nil
}
