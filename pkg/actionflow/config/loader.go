package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format is a configuration encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ErrUnsupportedFormat is returned for files without a known extension.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// FormatOf picks the format from the file extension (.yaml, .yml, .json).
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

// Parse decodes a document whose top level is a mapping. A blank document
// is an empty Config.
func Parse(data []byte, f Format) (Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return New(nil), nil
	}

	var m map[string]any
	var err error
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatJSON:
		err = json.Unmarshal(data, &m)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
	}
	if err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", f, err)
	}
	return New(m), nil
}

// FromFile reads path and decodes it according to its extension.
func FromFile(path string) (Config, error) {
	f, err := FormatOf(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data, f)
}

// FromYAML is Parse with FormatYAML.
func FromYAML(data []byte) (Config, error) { return Parse(data, FormatYAML) }

// FromJSON is Parse with FormatJSON.
func FromJSON(data []byte) (Config, error) { return Parse(data, FormatJSON) }

// LoadManifest reads a manifest file, expands ${NAME} references from the
// environment and parses the result.
func LoadManifest(path string) (Manifest, error) {
	c, err := FromFile(path)
	if err == nil {
		c, err = Expand(c, EnvLookup)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	m, err := ParseManifest(c)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}
