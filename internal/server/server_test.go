package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/muxstorm/internal/arrange"
	"github.com/dshills/muxstorm/internal/command"
	"github.com/dshills/muxstorm/internal/config"
	"github.com/dshills/muxstorm/internal/keys"
	"github.com/dshills/muxstorm/internal/pane"
	"github.com/dshills/muxstorm/internal/process"
	"github.com/dshills/muxstorm/internal/protocol"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return New(Context{Socket: filepath.Join(t.TempDir(), "test.sock")})
}

// withPanes arranges detached panes in one window, split side by side.
func withPanes(s *Server, n int) *arrange.Window {
	var w *arrange.Window
	for i := 1; i <= n; i++ {
		p := pane.NewDetached(pane.ID(i), 40, 23)
		if w == nil {
			w = s.arr.NewWindow(p, "one")
		} else if err := s.arr.AddPane(w.ID(), 0, p, arrange.Horizontal); err != nil {
			panic(err)
		}
	}
	s.nextPane = uint32(n)
	return w
}

// connect adds a client whose far end is returned.
func connect(t *testing.T, s *Server) (*ClientConnection, net.Conn) {
	t.Helper()
	srv, cli := net.Pipe()
	t.Cleanup(func() { _ = cli.Close() })
	c := newClientConnection(srv, s.log, s.metrics)
	s.clients[c.id] = c
	return c, cli
}

func decode(t *testing.T, b []byte) protocol.Packet {
	t.Helper()
	pkts, err := protocol.NewDecoder(protocol.ToServer, "test").Feed(b)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	return pkts[0]
}

// drain collects the text of out packets until the connection closes.
func drain(conn net.Conn) <-chan string {
	done := make(chan string, 1)
	go func() {
		r := protocol.NewReader(conn, protocol.ToClient, "test")
		var b strings.Builder
		for {
			p, err := r.Next()
			if err != nil {
				break
			}
			if p.Cmd == protocol.CmdOut {
				text, _ := p.Text()
				b.WriteString(text)
			}
		}
		done <- b.String()
	}()
	return done
}

// runOut sends a run-command packet and returns what came back.
func runOut(t *testing.T, s *Server, line string) string {
	t.Helper()
	c, cli := connect(t, s)
	out := drain(cli)
	s.handlePacket(context.Background(), c, decode(t, protocol.RunCommandPacket(protocol.RunCommand{Command: line})))
	select {
	case text := <-out:
		return text
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply to %q", line)
		return ""
	}
}

func TestSizePacket(t *testing.T) {
	s := newTestServer(t)
	c, cli := connect(t, s)
	out := drain(cli)

	s.handlePacket(context.Background(), c, decode(t, protocol.Size(40, 120)))
	cols, rows := c.Size()
	assert.Equal(t, 120, cols)
	assert.Equal(t, 40, rows)

	withPanes(s, 1)
	s.handlePacket(context.Background(), c, decode(t, protocol.StartGUIPacket(protocol.StartGUI{Term: "xterm-256color"})))
	require.True(t, c.Attached())
	w, h := c.screen.Size()
	assert.Equal(t, 120, w)
	assert.Equal(t, 40, h)

	s.handlePacket(context.Background(), c, decode(t, protocol.Size(30, 90)))
	w, h = c.screen.Size()
	assert.Equal(t, 90, w)
	assert.Equal(t, 30, h)

	s.detach(c, true)
	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed after detach")
	}
	assert.Empty(t, s.clients)
}

func TestViewportIsSmallestClient(t *testing.T) {
	s := newTestServer(t)
	a, _ := connect(t, s)
	b, _ := connect(t, s)
	a.cols, a.rows, a.attached = 100, 30, true
	b.cols, b.rows, b.attached = 80, 40, true

	cols, rows, ok := s.viewport()
	require.True(t, ok)
	assert.Equal(t, 80, cols)
	assert.Equal(t, 30, rows)

	b.attached = false
	cols, rows, _ = s.viewport()
	assert.Equal(t, 100, cols)
	assert.Equal(t, 30, rows)
}

func TestModeGuards(t *testing.T) {
	s := newTestServer(t)
	c, cli := connect(t, s)

	modes := make(chan protocol.Mode, 8)
	go func() {
		defer close(modes)
		r := protocol.NewReader(cli, protocol.ToClient, "test")
		for {
			p, err := r.Next()
			if err != nil {
				return
			}
			if m, err := p.Mode(); err == nil {
				modes <- m
			}
		}
	}()

	outer := c.EnterMode(protocol.ModeRaw)
	inner := c.EnterMode(protocol.ModeCooked)
	assert.Equal(t, protocol.ModeCooked, c.Mode())

	outer.Release()
	assert.Equal(t, protocol.ModeRestore, c.Mode())
	inner.Release()
	outer.Release()

	again := c.EnterMode(protocol.ModeRaw)
	inner.Release()
	assert.Equal(t, protocol.ModeRaw, c.Mode())
	again.Release()
	c.close(time.Second)

	var got []protocol.Mode
	for m := range modes {
		got = append(got, m)
	}
	assert.Equal(t, []protocol.Mode{
		protocol.ModeRaw, protocol.ModeCooked, protocol.ModeRestore,
		protocol.ModeRaw, protocol.ModeRestore,
	}, got)
}

func TestRunCommandOutput(t *testing.T) {
	s := newTestServer(t)
	withPanes(s, 1)
	s.arr.NewWindow(pane.NewDetached(2, 80, 23), "two")

	out := runOut(t, s, "list-windows")
	assert.Equal(t, "0: one- (1 pane)\n1: two* (1 pane)\n", out)

	out = runOut(t, s, "no-such-command")
	assert.Contains(t, out, "unknown command")

	out = runOut(t, s, "display-message '#I:#W'")
	assert.Equal(t, "1:two\n", out)
	assert.Empty(t, s.clients)
}

func TestRunCommandTargetsPane(t *testing.T) {
	s := newTestServer(t)
	withPanes(s, 2)

	c, cli := connect(t, s)
	out := drain(cli)
	s.handlePacket(context.Background(), c, decode(t, protocol.RunCommandPacket(protocol.RunCommand{
		Command: "rename-pane left",
		Pane:    1,
	})))
	<-out
	assert.Equal(t, "left", s.arr.Pane(1).Name())
	assert.Equal(t, "", s.arr.Pane(2).Name())
}

func TestSelectPaneWithoutClients(t *testing.T) {
	s := newTestServer(t)
	withPanes(s, 2)
	require.Equal(t, pane.ID(2), s.arr.ActivePane().ID())

	assert.Equal(t, "", runOut(t, s, "select-pane -L"))
	assert.Equal(t, pane.ID(1), s.arr.ActivePane().ID())

	runOut(t, s, "select-pane -t %2")
	assert.Equal(t, pane.ID(2), s.arr.ActivePane().ID())
	runOut(t, s, "select-pane -l")
	assert.Equal(t, pane.ID(1), s.arr.ActivePane().ID())
}

func TestSetOptionSurvivesReload(t *testing.T) {
	s := newTestServer(t)
	withPanes(s, 1)

	assert.Equal(t, "", runOut(t, s, "set-option status off"))
	assert.False(t, s.opts.Status)

	s.handleReload(reload{opts: config.Default()})
	assert.False(t, s.opts.Status)

	assert.Equal(t, "status off\n", runOut(t, s, "show-options status"))

	runOut(t, s, "set-option -u status")
	assert.True(t, s.opts.Status)
	s.handleReload(reload{opts: config.Default()})
	assert.True(t, s.opts.Status)

	assert.Contains(t, runOut(t, s, "set-option no-such-option 1"), "no-such-option")
}

func TestBindAndUnbind(t *testing.T) {
	s := newTestServer(t)
	withPanes(s, 1)

	runOut(t, s, "bind-key -n F5 next-window")
	cmd, ok := s.bindings.Lookup(command.RootTable, keys.MustParse("F5"))
	require.True(t, ok)
	assert.Equal(t, command.NextWindow, cmd.Kind)

	assert.Equal(t, "", runOut(t, s, "unbind-key -n F5"))
	assert.Contains(t, runOut(t, s, "unbind-key -n F5"), "not bound")
}

// attachTest attaches a client over a pipe and discards its output.
func attachTest(t *testing.T, s *Server) *ClientConnection {
	t.Helper()
	c, cli := connect(t, s)
	drain(cli)
	s.handlePacket(context.Background(), c, decode(t, protocol.StartGUIPacket(protocol.StartGUI{Term: "xterm-256color"})))
	require.True(t, c.Attached())
	t.Cleanup(func() {
		if c.screen != nil {
			c.screen.Fini()
		}
	})
	return c
}

func TestPrefixRunsBinding(t *testing.T) {
	s := newTestServer(t)
	withPanes(s, 1)
	s.arr.NewWindow(pane.NewDetached(2, 80, 23), "two")
	c := attachTest(t, s)
	ctx := context.Background()

	s.handleInput(ctx, c, []byte("\x02"))
	assert.True(t, c.prefix)
	s.handleInput(ctx, c, []byte("0"))
	assert.False(t, c.prefix)
	assert.Equal(t, "one", s.arr.ActiveWindow().Name())

	// Unbound keys after the prefix are swallowed.
	s.handleInput(ctx, c, []byte("\x02Z"))
	assert.Equal(t, "one", s.arr.ActiveWindow().Name())
}

func TestCommandPrompt(t *testing.T) {
	s := newTestServer(t)
	withPanes(s, 1)
	c := attachTest(t, s)
	ctx := context.Background()

	cmd, err := s.table.Parse("command-prompt -p name 'rename-window %%'")
	require.NoError(t, err)
	require.NoError(t, s.Execute(withClient(ctx, c), cmd))
	require.NotNil(t, c.prompt)
	assert.Equal(t, "name", c.status("", "", time.Now(), 80, 24).Prompt)

	s.handleInput(ctx, c, []byte("logsx\x7f\r"))
	assert.Nil(t, c.prompt)
	assert.Equal(t, "logs", s.arr.ActiveWindow().Name())

	require.NoError(t, s.Execute(withClient(ctx, c), cmd))
	s.handleInput(ctx, c, []byte("\x1b"))
	assert.Nil(t, c.prompt)
	assert.Equal(t, "logs", s.arr.ActiveWindow().Name())
}

func TestStickyMessageSwallowsKey(t *testing.T) {
	s := newTestServer(t)
	withPanes(s, 1)
	s.arr.NewWindow(pane.NewDetached(2, 80, 23), "two")
	c := attachTest(t, s)
	ctx := context.Background()

	s.run(ctx, c, command.Command{Kind: command.ListWindows})
	assert.Contains(t, c.message, "\n")

	s.handleInput(ctx, c, []byte("\x02"))
	assert.Empty(t, c.message)
	assert.False(t, c.prefix)

	c.setMessage("short", time.Hour)
	s.handleInput(ctx, c, []byte("\x02"))
	assert.Empty(t, c.message)
	assert.True(t, c.prefix)
}

func TestRemainOnExit(t *testing.T) {
	s := newTestServer(t)
	withPanes(s, 2)
	require.NoError(t, s.opts.Set("remain-on-exit", "on"))

	s.paneExited(1, process.ExitStatus{Code: 2})
	p := s.arr.Pane(1)
	require.NotNil(t, p)
	assert.True(t, p.Dead())
	assert.Equal(t, 2, p.ExitStatus().Code)

	require.NoError(t, s.arr.FocusPane(1))
	runOut(t, s, "kill-pane")
	assert.Nil(t, s.arr.Pane(1))

	require.NoError(t, s.opts.Set("remain-on-exit", "off"))
	s.paneExited(2, process.ExitStatus{})
	assert.True(t, s.arr.Empty())
	assert.Equal(t, "no panes left", s.exitReason)
}

func TestListenRefusesSecondServer(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "s.sock")
	ln, err := listen(sock)
	require.NoError(t, err)

	st, err := os.Stat(sock)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), st.Mode().Perm())
	assert.True(t, Probe(sock))

	_, err = listen(sock)
	assert.Error(t, err)

	require.NoError(t, ln.Close())
	assert.False(t, Probe(sock))

	// A socket left behind by a dead server is replaced.
	stale, err := net.Listen("unix", sock)
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())
	ln, err = listen(sock)
	require.NoError(t, err)
	sessions, err := ListSessions(filepath.Dir(sock))
	require.NoError(t, err)
	assert.Equal(t, []string{sock}, sessions)
	require.NoError(t, ln.Close())
}

func waitForSocket(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !Probe(path) {
		if time.Now().After(deadline) {
			t.Fatalf("server did not start on %s", path)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// attachUntil attaches to the server, waits for want in the drawn
// output, then detaches by closing the connection.
func attachUntil(t *testing.T, path, want string) {
	t.Helper()
	conn, err := Dial(path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write(protocol.StartGUIPacket(protocol.StartGUI{Term: "xterm-256color"}))
	require.NoError(t, err)
	_, err = conn.Write(protocol.Size(24, 80))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	r := protocol.NewReader(conn, protocol.ToClient, "test")
	first, err := r.Next()
	require.NoError(t, err)
	mode, err := first.Mode()
	require.NoError(t, err)
	assert.Equal(t, protocol.ModeRaw, mode)

	var screen strings.Builder
	for !strings.Contains(screen.String(), want) {
		p, err := r.Next()
		require.NoError(t, err, "output so far: %q", screen.String())
		if p.Cmd == protocol.CmdOut {
			text, _ := p.Text()
			screen.WriteString(text)
		}
	}
}

func TestDetachReattach(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no pty support")
	}

	sock := filepath.Join(t.TempDir(), "s.sock")
	srv := New(Context{
		Socket:  sock,
		Command: []string{"/bin/sh", "-c", "echo ready; cat"},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- srv.Run(ctx) }()
	waitForSocket(t, sock)

	attachUntil(t, sock, "ready")
	attachUntil(t, sock, "ready")

	conn, err := Dial(sock)
	require.NoError(t, err)
	_, err = conn.Write(protocol.RunCommandPacket(protocol.RunCommand{Command: "kill-server"}))
	require.NoError(t, err)
	_ = conn.Close()

	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after kill-server")
	}
	snap := srv.metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.PanesSpawned)
	assert.Equal(t, int64(0), snap.ClientsAttached)
	assert.False(t, Probe(sock))
}

func TestProtocolErrorDropsOnlyThatClient(t *testing.T) {
	s := newTestServer(t)
	withPanes(s, 1)
	ctx := context.Background()
	start := decode(t, protocol.StartGUIPacket(protocol.StartGUI{Term: "xterm-256color"}))

	good, goodCli := connect(t, s)
	texts := make(chan string, 256)
	go func() {
		defer close(texts)
		r := protocol.NewReader(goodCli, protocol.ToClient, "test")
		for {
			p, err := r.Next()
			if err != nil {
				return
			}
			if p.Cmd == protocol.CmdOut {
				text, _ := p.Text()
				texts <- text
			}
		}
	}()
	s.handlePacket(ctx, good, start)
	t.Cleanup(func() { good.screen.Fini() })

	bad, badCli := connect(t, s)
	badClosed := drain(badCli)
	s.handlePacket(ctx, bad, start)
	go bad.readLoop(s.events, s.stop)
	go func() { _, _ = badCli.Write([]byte("{oops\x00")) }()

	select {
	case ev := <-s.events:
		require.Same(t, bad, ev.client)
		require.Error(t, ev.err)
		s.handleClientEvent(ctx, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no event for the bad packet")
	}
	select {
	case <-badClosed:
	case <-time.After(2 * time.Second):
		t.Fatal("bad connection left open")
	}
	assert.NotContains(t, s.clients, bad.id)
	assert.Contains(t, s.clients, good.id)
	assert.True(t, good.Attached())
	assert.Equal(t, uint64(1), s.metrics.Snapshot().ProtocolErrors)

	s.handlePaneOutput(pane.Output{Pane: 1, Data: []byte("still-here")})
	s.render()
	var seen strings.Builder
	deadline := time.After(2 * time.Second)
	for !strings.Contains(seen.String(), "still-here") {
		select {
		case text, ok := <-texts:
			require.True(t, ok, "good connection closed")
			seen.WriteString(text)
		case <-deadline:
			t.Fatalf("pane output never reached the other client: %q", seen.String())
		}
	}
}
