// Package server runs a multiplexer session: it owns the panes and their
// arrangement, accepts client connections on a unix socket and draws the
// session for every attached client.
//
// All session state belongs to a single event loop goroutine. Pane
// readers, connection readers, the accept loop, the config watcher and
// the reaping pool only deliver events to it.
package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/muxstorm/internal/command"
	"github.com/dshills/muxstorm/internal/config"
	"github.com/dshills/muxstorm/internal/logging"
	"github.com/dshills/muxstorm/internal/metrics"
)

// SocketName is the file name of the default session's socket.
const SocketName = "default.sock"

// Context carries what a server needs from its caller.
type Context struct {
	// Socket is the path the server listens on.
	Socket string
	// Config holds the options in effect at startup. ConfigFiles are
	// watched and reloaded, with Environ applied on every reload.
	Config      *config.Options
	ConfigFiles []string
	Environ     []string
	// Command is the argv of the first pane. The default shell is used
	// when it is empty.
	Command []string
	// Dir is the working directory of the first pane.
	Dir string

	Logger  *logging.Logger
	Metrics *metrics.Metrics
	Table   *command.Table
}

func (c *Context) withDefaults() {
	if c.Config == nil {
		c.Config = config.Default()
	}
	if c.Logger == nil {
		c.Logger = logging.Nop()
	}
	if c.Metrics == nil {
		c.Metrics = metrics.New()
	}
	if c.Table == nil {
		c.Table = command.NewTable()
	}
}

// SocketDir returns the per-user directory holding session sockets.
func SocketDir(uid int) string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("muxstorm-%d", uid))
}

// DefaultSocketPath returns the socket of the default session.
func DefaultSocketPath(uid int) string {
	return filepath.Join(SocketDir(uid), SocketName)
}

// SessionName derives a session name from its socket path.
func SessionName(socket string) string {
	return strings.TrimSuffix(filepath.Base(socket), ".sock")
}
