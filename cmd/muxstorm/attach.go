package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/muxstorm/internal/client"
	"github.com/dshills/muxstorm/internal/pane"
	"github.com/dshills/muxstorm/internal/server"
)

const queryTimeout = 2 * time.Second

func newAttachCmd(g *globals) *cobra.Command {
	var detachOthers bool
	cmd := &cobra.Command{
		Use:     "attach",
		Aliases: []string{"a"},
		Short:   "Attach to a running server",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return attach(cmd.Context(), g, detachOthers)
		},
	}
	cmd.Flags().BoolVarP(&detachOthers, "detach-others", "d", false, "detach every other client")
	return cmd
}

func attach(ctx context.Context, g *globals, detachOthers bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if os.Getenv(pane.EnvVar) != "" && g.socket == "" {
		return fmt.Errorf("already inside a session (unset $%s to force)", pane.EnvVar)
	}
	sock := g.socketPath()
	conn, err := server.Dial(sock)
	if err != nil {
		return noServer(err, sock)
	}
	defer conn.Close()

	err = client.Attach(ctx, conn, client.Options{
		In:           os.Stdin,
		Out:          os.Stdout,
		Term:         os.Getenv("TERM"),
		DetachOthers: detachOthers,
		Logger:       cliLogger(g),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, "[detached]")
	return nil
}

func newRunCmd(g *globals) *cobra.Command {
	var target uint32
	cmd := &cobra.Command{
		Use:   "run <command...>",
		Short: "Run a command in the server and print its reply",
		Example: `  muxstorm run split-window -h
  muxstorm run list-windows
  muxstorm run --pane 3 'send-keys "make test" Enter'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := target
			if id == 0 {
				if _, envID, ok := paneFromEnv(os.Getenv(pane.EnvVar)); ok {
					id = envID
				}
			}
			return runCommand(g, strings.Join(args, " "), id, cmd.OutOrStdout())
		},
	}
	cmd.Flags().Uint32Var(&target, "pane", 0, "pane the command applies to (default $"+pane.EnvVar+")")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

func runCommand(g *globals, line string, paneID uint32, out io.Writer) error {
	sock := g.socketPath()
	conn, err := server.Dial(sock)
	if err != nil {
		return noServer(err, sock)
	}
	return client.Run(conn, line, paneID, out)
}

func newListSessionsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "list-sessions",
		Aliases: []string{"ls"},
		Short:   "List running sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listSessions(g, cmd.OutOrStdout())
		},
	}
}

// listSessions prints one line per live server with its window count.
func listSessions(g *globals, out io.Writer) error {
	dir := server.SocketDir(os.Getuid())
	if g.socket != "" {
		dir = filepath.Dir(g.socket)
	}
	socks, err := server.ListSessions(dir)
	if err != nil {
		return err
	}
	if len(socks) == 0 {
		return fmt.Errorf("no sessions in %s", dir)
	}
	for _, sock := range socks {
		conn, err := server.Dial(sock)
		if err != nil {
			continue
		}
		reply, err := client.Query(conn, "list-windows", queryTimeout)
		if err != nil {
			fmt.Fprintf(out, "%s: (not responding)\n", server.SessionName(sock))
			continue
		}
		n := strings.Count(reply, "\n")
		noun := "windows"
		if n == 1 {
			noun = "window"
		}
		fmt.Fprintf(out, "%s: %d %s\n", server.SessionName(sock), n, noun)
	}
	return nil
}
