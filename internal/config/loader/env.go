package loader

import (
	"os"
	"strings"
)

// EnvPrefix is the prefix of option overrides in the environment.
const EnvPrefix = "MUXSTORM_"

// EnvLoader loads options from prefixed environment variables.
// MUXSTORM_HISTORY_LIMIT=5000 sets history-limit.
type EnvLoader struct {
	prefix  string
	environ func() []string
	skip    map[string]bool
}

// NewEnvLoader creates an environment loader for prefix, which should
// include the trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		environ: os.Environ,
		skip:    map[string]bool{},
	}
}

// NewEnvLoaderFrom creates a loader over a fixed environment.
func NewEnvLoaderFrom(prefix string, environ []string) *EnvLoader {
	l := NewEnvLoader(prefix)
	l.environ = func() []string { return environ }
	return l
}

// Skip excludes a variable that shares the prefix but is not an option.
func (l *EnvLoader) Skip(name string) {
	l.skip[name] = true
}

// Load returns the overrides present in the environment. Empty values are
// kept.
func (l *EnvLoader) Load() (map[string]any, error) {
	out := make(map[string]any)
	for _, kv := range l.environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) || l.skip[name] {
			continue
		}
		opt := l.envToOption(name)
		if opt == "" {
			continue
		}
		out[opt] = value
	}
	return out, nil
}

// envToOption converts MUXSTORM_STATUS_LEFT_LENGTH to status-left-length.
func (l *EnvLoader) envToOption(env string) string {
	name := strings.TrimPrefix(env, l.prefix)
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}
