// Package config holds the session options and loads them.
//
// Options are layered: built-in defaults, then muxstorm.toml (which may
// @include other files), then muxstorm.yaml, then MUXSTORM_* environment
// overrides, then set-option at runtime. Every layer goes through
// Options.Set, so a value is validated the same way wherever it comes
// from.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/muxstorm/internal/config/loader"
	"github.com/dshills/muxstorm/internal/config/watcher"
	"github.com/dshills/muxstorm/internal/muxerr"
)

// EnvConfig names the variable that overrides the config file path. It
// shares the option prefix, so the env loader skips it.
const EnvConfig = "MUXSTORM_CONFIG"

// DefaultFiles returns the option files read when no --config is given.
func DefaultFiles() []string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, herr := os.UserHomeDir()
		if herr != nil {
			return nil
		}
		dir = filepath.Join(home, ".config")
	}
	dir = filepath.Join(dir, "muxstorm")
	return []string{
		filepath.Join(dir, "muxstorm.toml"),
		filepath.Join(dir, "muxstorm.yaml"),
	}
}

// Files resolves the option files: explicit if set, then $MUXSTORM_CONFIG,
// then DefaultFiles.
func Files(explicit string) []string {
	if explicit != "" {
		return []string{explicit}
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return []string{env}
	}
	return DefaultFiles()
}

// LoaderFor picks a loader by file extension. Anything that is not YAML
// is read as TOML.
func LoaderFor(path string) loader.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loader.NewYAMLLoader(path)
	}
	return loader.NewTOMLLoader(path)
}

// Load builds options from defaults, files and environ (in os.Environ
// form). Missing files are skipped. The returned options are always
// usable: bad values are reported in the error and otherwise ignored.
func Load(files []string, environ []string) (*Options, error) {
	layers := make([]loader.Loader, 0, len(files)+1)
	for _, f := range files {
		layers = append(layers, LoaderFor(f))
	}
	env := loader.NewEnvLoaderFrom(loader.EnvPrefix, environ)
	env.Skip(EnvConfig)
	layers = append(layers, env)
	return LoadFrom(layers...)
}

// LoadFrom applies each loader's values over the defaults in order.
func LoadFrom(layers ...loader.Loader) (*Options, error) {
	opts := Default()
	var errs muxerr.ErrorList
	for _, l := range layers {
		m, err := l.Load()
		if err != nil {
			errs.Add(err)
			continue
		}
		errs.Add(opts.Apply(m))
	}
	return opts, errs.AsError()
}

// Apply sets every value in m, in name order, and collects failures.
func (o *Options) Apply(m map[string]any) error {
	var errs muxerr.ErrorList
	for _, name := range loader.Names(m) {
		if err := o.Set(name, loader.String(m[name])); err != nil {
			errs.Add(err)
		}
	}
	return errs.AsError()
}

// Watch calls fn with a freshly loaded set of options whenever one of
// files is written or created, until ctx is done. Load errors are passed
// along with the options so the caller can report them.
func Watch(ctx context.Context, files []string, environ []string, fn func(*Options, error)) error {
	if len(files) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	w, err := watcher.New(files)
	if err != nil {
		return fmt.Errorf("watching config: %w", err)
	}
	defer w.Close()
	return w.Run(ctx, func(string) {
		fn(Load(files, environ))
	})
}
