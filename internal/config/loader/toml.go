package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// IncludeKey names the files a TOML option file pulls in. Included files
// are lower priority than the file that includes them.
const IncludeKey = "@include"

// maxIncludeDepth bounds nested includes.
const maxIncludeDepth = 8

// TOMLLoader loads options from a TOML file.
type TOMLLoader struct {
	fs   FileSystem
	path string
}

// NewTOMLLoader creates a TOML loader for path.
func NewTOMLLoader(path string) *TOMLLoader {
	return &TOMLLoader{fs: DefaultFS(), path: path}
}

// NewTOMLLoaderWithFS creates a TOML loader on a custom file system.
func NewTOMLLoaderWithFS(fs FileSystem, path string) *TOMLLoader {
	return &TOMLLoader{fs: fs, path: path}
}

// Load reads the configured file and its includes.
func (l *TOMLLoader) Load() (map[string]any, error) {
	return l.loadWithIncludes(l.path, maxIncludeDepth)
}

// LoadFromReader parses TOML from r. Includes are not followed.
func (l *TOMLLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	m, err := l.parse("<reader>", data)
	if err != nil {
		return nil, err
	}
	delete(m, IncludeKey)
	return Flatten(m), nil
}

func (l *TOMLLoader) loadFrom(path string) (map[string]any, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return l.parse(path, data)
}

func (l *TOMLLoader) parse(source string, data []byte) (map[string]any, error) {
	var m map[string]any
	if err := toml.Unmarshal(data, &m); err != nil {
		pe := &ParseError{Path: source, Message: err.Error(), Err: err}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			pe.Line, pe.Column = de.Position()
		}
		return nil, pe
	}
	if m == nil {
		m = make(map[string]any)
	}
	return m, nil
}

func (l *TOMLLoader) loadWithIncludes(path string, depth int) (map[string]any, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("include depth exceeded for %s", path)
	}
	m, err := l.loadFrom(path)
	if err != nil || m == nil {
		return nil, err
	}

	includes, ok := m[IncludeKey]
	delete(m, IncludeKey)
	out := Flatten(m)
	if !ok {
		return out, nil
	}

	var list []string
	switch v := includes.(type) {
	case string:
		list = []string{v}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s: %s must be a string or array of strings", path, IncludeKey)
			}
			list = append(list, s)
		}
	default:
		return nil, fmt.Errorf("%s: %s must be a string or array of strings, got %T", path, IncludeKey, includes)
	}

	base := make(map[string]any)
	dir := filepath.Dir(path)
	for _, inc := range list {
		incPath := inc
		if !filepath.IsAbs(inc) {
			incPath = filepath.Join(dir, inc)
		}
		sub, err := l.loadWithIncludes(incPath, depth-1)
		if err != nil {
			return nil, fmt.Errorf("loading include %s: %w", incPath, err)
		}
		Merge(base, sub)
	}
	return Merge(base, out), nil
}
