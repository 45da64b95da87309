// Package loader reads vendor configuration exports into canonical trees.
// Both supported formats normalize to the same scalar types (string, bool,
// int64, float64), so downstream comparison is format-independent.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/netscope-io/netscope/pkg/tree"
)

// ParseError wraps a format-level failure with its input source.
type ParseError struct {
	Source string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Loader turns one input into a canonical document.
type Loader interface {
	Load(r io.Reader, source string) (tree.Document, error)
}

type jsonLoader struct{}

type yamlLoader struct{}

// JSON returns the loader for JSON configuration exports.
func JSON() Loader { return jsonLoader{} }

// YAML returns the loader for YAML configuration exports.
func YAML() Loader { return yamlLoader{} }

// ForPath picks a loader by file extension.
func ForPath(path string) (Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON(), nil
	case ".yaml", ".yml":
		return YAML(), nil
	default:
		return nil, &ParseError{Source: path, Err: fmt.Errorf("unsupported extension %q", filepath.Ext(path))}
	}
}

// LoadFile reads one configuration file with the loader its extension picks.
func LoadFile(path string) (tree.Document, error) {
	l, err := ForPath(path)
	if err != nil {
		return tree.Document{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return tree.Document{}, err
	}
	return l.Load(bytes.NewReader(raw), path)
}

func (jsonLoader) Load(r io.Reader, source string) (tree.Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return tree.Document{}, &ParseError{Source: source, Err: err}
	}
	root, ok := normalize(raw).(map[string]any)
	if !ok {
		return tree.Document{}, &ParseError{Source: source, Err: fmt.Errorf("top level is not an object")}
	}
	return document(root), nil
}

func (yamlLoader) Load(r io.Reader, source string) (tree.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return tree.Document{}, &ParseError{Source: source, Err: err}
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		return tree.Document{}, &ParseError{Source: source, Err: err}
	}
	root, ok := normalize(decoded).(map[string]any)
	if !ok {
		return tree.Document{}, &ParseError{Source: source, Err: fmt.Errorf("top level is not a mapping")}
	}
	return document(root), nil
}

// document tags the tree with the vendor declared in its metadata section,
// falling back to the canonical model name.
func document(root tree.Tree) tree.Document {
	vendor := "openconfig"
	if v, ok := tree.At(root, "device/vendor"); ok {
		if s, isString := v.(string); isString && s != "" {
			vendor = s
		}
	}
	return tree.Document{Vendor: vendor, Root: root}
}

// normalize rewrites decoder-specific value types into the canonical scalar
// set. Integral numbers become int64 even when the decoder produced
// something else; exact representation matters to the diff engine.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(tree.Tree, len(val))
		for k, child := range val {
			out[k] = normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalize(child)
		}
		return out
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
