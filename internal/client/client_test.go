package client

import (
	"bytes"
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/muxstorm/internal/logging"
	"github.com/dshills/muxstorm/internal/protocol"
)

func openTerminal(t *testing.T) (ptmx, tty *os.File) {
	t.Helper()
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no /dev/ptmx")
	}
	ptmx, tty, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = tty.Close()
		_ = ptmx.Close()
	})
	require.NoError(t, pty.Setsize(ptmx, &pty.Winsize{Rows: 30, Cols: 100}))
	return ptmx, tty
}

func next(t *testing.T, r *protocol.Reader) protocol.Packet {
	t.Helper()
	p, err := r.Next()
	require.NoError(t, err)
	return p
}

func TestAttach(t *testing.T) {
	ptmx, tty := openTerminal(t)
	srv, cli := net.Pipe()
	defer srv.Close()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- Attach(context.Background(), cli, Options{In: tty, Out: &out, Term: "xterm-256color"})
	}()

	r := protocol.NewReader(srv, protocol.ToServer, "test")
	p := next(t, r)
	require.Equal(t, protocol.CmdStartGUI, p.Cmd)
	assert.Equal(t, protocol.StartGUI{Term: "xterm-256color"}, p.StartGUI())

	p = next(t, r)
	require.Equal(t, protocol.CmdSize, p.Cmd)
	rows, cols, err := p.Size()
	require.NoError(t, err)
	assert.Equal(t, 30, rows)
	assert.Equal(t, 100, cols)

	_, err = srv.Write(protocol.SetMode(protocol.ModeRaw))
	require.NoError(t, err)
	_, err = srv.Write(protocol.Out("hello"))
	require.NoError(t, err)

	_, err = ptmx.Write([]byte("x\n"))
	require.NoError(t, err)
	var typed strings.Builder
	for !strings.Contains(typed.String(), "x") {
		p = next(t, r)
		if p.Cmd != protocol.CmdIn {
			t.Fatalf("unexpected packet %s", p.Cmd)
		}
		text, err := p.Text()
		require.NoError(t, err)
		typed.WriteString(text)
	}

	_, err = srv.Write(protocol.SetMode(protocol.ModeRestore))
	require.NoError(t, err)
	require.NoError(t, srv.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("attach did not return")
	}
	assert.Equal(t, "hello", out.String())
}

// forwarded runs forwardInput over in and returns what the server
// receives in in packets.
func forwarded(t *testing.T, in string) string {
	t.Helper()
	srv, cli := net.Pipe()
	defer srv.Close()
	go func() {
		forwardInput(iotest.OneByteReader(strings.NewReader(in)), &sender{conn: cli}, logging.Nop())
		_ = cli.Close()
	}()

	r := protocol.NewReader(srv, protocol.ToServer, "test")
	var got strings.Builder
	for {
		p, err := r.Next()
		if err != nil {
			break
		}
		require.Equal(t, protocol.CmdIn, p.Cmd)
		text, err := p.Text()
		require.NoError(t, err)
		got.WriteString(text)
	}
	return got.String()
}

func TestForwardInputKeepsSplitRunes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"é漢", "é漢"},
		{"a😀b", "a😀b"},
		{"x\xe6y", "x\uFFFDy"},
		{"z\xe6\xbc", "z\uFFFD"},
	}
	for _, tt := range tests {
		if got := forwarded(t, tt.in); got != tt.want {
			t.Errorf("forwardInput(%q) sent %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAttachNeedsTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	_, cli := net.Pipe()
	defer cli.Close()

	err = Attach(context.Background(), cli, Options{In: r})
	if err == nil || !strings.Contains(err.Error(), "not a terminal") {
		t.Errorf("Attach() error = %v, want not a terminal", err)
	}
}

func TestRun(t *testing.T) {
	srv, cli := net.Pipe()
	go func() {
		defer srv.Close()
		r := protocol.NewReader(srv, protocol.ToServer, "test")
		p, err := r.Next()
		if err != nil {
			return
		}
		rc, err := p.RunCommand()
		if err != nil {
			return
		}
		_, _ = srv.Write(protocol.Out(rc.Command + "@" + string(rune('0'+rc.Pane)) + "\n"))
	}()

	var out bytes.Buffer
	require.NoError(t, Run(cli, "list-windows", 3, &out))
	assert.Equal(t, "list-windows@3\n", out.String())
}

func TestQueryTimesOut(t *testing.T) {
	srv, cli := net.Pipe()
	defer srv.Close()
	go func() {
		// Read the request and never answer.
		buf := make([]byte, 256)
		_, _ = srv.Read(buf)
	}()

	start := time.Now()
	_, err := Query(cli, "list-sessions", 100*time.Millisecond)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
