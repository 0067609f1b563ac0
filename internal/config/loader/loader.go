// Package loader reads option files and environment overrides into flat
// maps of option name to value.
//
// Files may nest options in tables; Flatten joins nested keys with a
// hyphen so `[status] style = "..."` and `status-style = "..."` mean the
// same thing.
package loader

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
)

// Loader is the interface for option sources.
type Loader interface {
	// Load returns the options found in the source, or nil, nil if the
	// source does not exist.
	Load() (map[string]any, error)
}

// ReaderLoader is implemented by loaders that can parse a stream.
type ReaderLoader interface {
	LoadFromReader(r io.Reader) (map[string]any, error)
}

// FileSystem is the file access loaders need.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem on the real file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// DefaultFS returns the OS file system.
func DefaultFS() FileSystem {
	return OSFS{}
}

// ParseError is a syntax error in an option file.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("parse error in %s at line %d, column %d: %s", e.Path, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error in %s at line %d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Merge copies src over dst and returns dst. Later layers win.
func Merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Flatten turns nested tables into hyphen-joined option names.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	flatten(out, "", m)
	return out
}

func flatten(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		name := k
		if prefix != "" {
			name = prefix + "-" + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(out, name, sub)
			continue
		}
		out[name] = v
	}
}

// Names returns the keys of m in sorted order.
func Names(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// String renders a loaded value the way set-option expects it.
func String(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case bool:
		if v {
			return "on"
		}
		return "off"
	case []any:
		parts := make([]string, len(v))
		for i, p := range v {
			parts[i] = String(p)
		}
		return strings.Join(parts, " ")
	}
	return fmt.Sprint(v)
}
