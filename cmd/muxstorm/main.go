// Package main is the entry point for muxstorm.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/muxstorm/internal/logging"
	"github.com/dshills/muxstorm/internal/muxerr"
	"github.com/dshills/muxstorm/internal/pane"
	"github.com/dshills/muxstorm/internal/server"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// globals are the flags every command shares.
type globals struct {
	socket   string
	config   string
	logLevel string
	logFile  string
}

func main() {
	os.Exit(run())
}

func run() int {
	root := newRootCmd(&globals{})
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "muxstorm: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd(g *globals) *cobra.Command {
	root := &cobra.Command{
		Use:   "muxstorm",
		Short: "A terminal multiplexer",
		Long: `muxstorm runs shells in panes and windows inside a server that
outlives the terminal it was started from.

Without a subcommand it attaches to the session, starting a server
first when none is running.`,
		Version:       fmt.Sprintf("%s (%s, %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ensureServer(g); err != nil {
				return err
			}
			return attach(cmd.Context(), g, false)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&g.socket, "socket", "S", "", "server socket path")
	pf.StringVar(&g.config, "config", "", "options file (default $MUXSTORM_CONFIG or the user config dir)")
	pf.StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error")
	pf.StringVar(&g.logFile, "log-file", "", "write server logs to this file")

	root.AddCommand(
		newServerCmd(g),
		newAttachCmd(g),
		newListSessionsCmd(g),
		newRunCmd(g),
		newKillServerCmd(g),
	)
	return root
}

// socketPath resolves the session socket: --socket, then the socket of
// the pane we run in, then the default.
func (g *globals) socketPath() string {
	if g.socket != "" {
		return g.socket
	}
	if sock, _, ok := paneFromEnv(os.Getenv(pane.EnvVar)); ok {
		return sock
	}
	return server.DefaultSocketPath(os.Getuid())
}

// serverLogPath is where a background server logs when --log-file is not
// given.
func (g *globals) serverLogPath() string {
	if g.logFile != "" {
		return g.logFile
	}
	sock := g.socketPath()
	return filepath.Join(filepath.Dir(sock), server.SessionName(sock)+".log")
}

// paneFromEnv splits a "<socket>,<pane id>" value set in every pane.
func paneFromEnv(v string) (socket string, id uint32, ok bool) {
	i := strings.LastIndexByte(v, ',')
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.ParseUint(v[i+1:], 10, 32)
	if err != nil {
		return "", 0, false
	}
	return v[:i], uint32(n), true
}

// cliLogger logs client side problems to stderr.
func cliLogger(g *globals) *logging.Logger {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LevelWarn
	if g.logLevel != "" {
		cfg.Level = logging.ParseLevel(g.logLevel)
	}
	return logging.New(cfg)
}

func noServer(err error, socket string) error {
	if errors.Is(err, muxerr.ErrNoServer) {
		return fmt.Errorf("no server running on %s", socket)
	}
	return err
}
