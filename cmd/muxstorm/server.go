package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/muxstorm/internal/config"
	"github.com/dshills/muxstorm/internal/logging"
	"github.com/dshills/muxstorm/internal/server"
)

const (
	startTimeout = 5 * time.Second
	startPoll    = 20 * time.Millisecond
)

func newServerCmd(g *globals) *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "server [command...]",
		Short: "Run a server",
		Long: `Run a session server. The first window runs command, or the
default shell when none is given.

Without --foreground the server detaches from the terminal and logs to
a file next to its socket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !foreground {
				return startBackground(g, args)
			}
			return serve(cmd.Context(), g, args, os.Stderr)
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "stay attached to the terminal")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// serve runs a server in this process until it exits or a termination
// signal arrives.
func serve(ctx context.Context, g *globals, argv []string, logOut io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	// The controlling terminal going away must not end the session.
	signal.Ignore(syscall.SIGHUP)

	if g.logFile != "" {
		f, err := logging.OpenFile(g.logFile)
		if err != nil {
			return fmt.Errorf("log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}

	environ := os.Environ()
	if g.logLevel != "" {
		// Applied again on every reload, so the flag keeps winning.
		environ = append(environ, "MUXSTORM_LOG_LEVEL="+g.logLevel)
	}
	files := config.Files(g.config)
	opts, cfgErr := config.Load(files, environ)

	logCfg := logging.DefaultConfig()
	logCfg.Output = logOut
	logCfg.Level = opts.LogLevel
	log := logging.New(logCfg)
	if cfgErr != nil {
		log.Warn("config", "err", cfgErr)
	}

	dir, _ := os.Getwd()
	srv := server.New(server.Context{
		Socket:      g.socketPath(),
		Config:      opts,
		ConfigFiles: files,
		Environ:     environ,
		Command:     argv,
		Dir:         dir,
		Logger:      log,
	})
	return srv.Run(ctx)
}

// startBackground re-executes this binary as a detached foreground
// server and waits until it answers on its socket.
func startBackground(g *globals, argv []string) error {
	sock := g.socketPath()
	if server.Probe(sock) {
		return fmt.Errorf("%s: server already running", sock)
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	args := []string{"server", "--foreground", "--socket", sock, "--log-file", g.serverLogPath()}
	if g.config != "" {
		args = append(args, "--config", g.config)
	}
	if g.logLevel != "" {
		args = append(args, "--log-level", g.logLevel)
	}
	if len(argv) > 0 {
		args = append(args, "--")
		args = append(args, argv...)
	}

	devNull, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer devNull.Close()

	cmd := exec.Command(exe, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = devNull, devNull, devNull
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	deadline := time.NewTimer(startTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(startPoll)
	defer tick.Stop()
	for {
		select {
		case err := <-exited:
			if server.Probe(sock) {
				// Lost a start race to another server on the same socket.
				return nil
			}
			if err == nil {
				err = errors.New("exited")
			}
			return fmt.Errorf("server failed to start (see %s): %w", g.serverLogPath(), err)
		case <-deadline.C:
			return fmt.Errorf("server did not answer on %s within %s", sock, startTimeout)
		case <-tick.C:
			if server.Probe(sock) {
				return nil
			}
		}
	}
}

// ensureServer starts a background server unless one answers already.
func ensureServer(g *globals) error {
	if server.Probe(g.socketPath()) {
		return nil
	}
	return startBackground(g, nil)
}

func newKillServerCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "kill-server",
		Short: "Stop the server and every pane",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(g, "kill-server", 0, cmd.OutOrStdout())
		},
	}
}
