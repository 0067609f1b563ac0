package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/muxstorm/internal/muxerr"
)

func TestSizePacketRoundTrip(t *testing.T) {
	wire := Size(40, 120)
	assert.Equal(t, byte(0), wire[len(wire)-1])

	pkts, err := NewDecoder(ToServer, "c1").Feed(wire)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	assert.Equal(t, CmdSize, pkts[0].Cmd)

	rows, cols, err := pkts[0].Size()
	require.NoError(t, err)
	assert.Equal(t, 40, rows)
	assert.Equal(t, 120, cols)
}

func TestDecoderPartialReads(t *testing.T) {
	wire := append(In("ls\r"), Size(24, 80)...)
	d := NewDecoder(ToServer, "c1")

	var got []Packet
	for _, b := range wire {
		pkts, err := d.Feed([]byte{b})
		require.NoError(t, err)
		got = append(got, pkts...)
	}
	require.Len(t, got, 2)
	text, err := got[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "ls\r", text)
	assert.Equal(t, CmdSize, got[1].Cmd)
	assert.Equal(t, 0, d.Buffered())
}

func TestInEscapesControlBytes(t *testing.T) {
	raw := "\x1b[A\x00\x03\"\\é"
	wire := In(raw)
	assert.Equal(t, 1, bytes.Count(wire, []byte{0}), "only the terminator is NUL")

	pkts, err := NewDecoder(ToServer, "").Feed(wire)
	require.NoError(t, err)
	text, err := pkts[0].Text()
	require.NoError(t, err)
	assert.Equal(t, raw, text)
}

func TestInReplacesInvalidUTF8(t *testing.T) {
	pkts, err := NewDecoder(ToServer, "").Feed(In("a\xffb"))
	require.NoError(t, err)
	text, _ := pkts[0].Text()
	assert.Equal(t, "a�b", text)
}

func TestServerPackets(t *testing.T) {
	d := NewDecoder(ToClient, "server")
	pkts, err := d.Feed(bytes.Join([][]byte{Out("hi"), SetMode(ModeRaw), Suspend()}, nil))
	require.NoError(t, err)
	require.Len(t, pkts, 3)

	text, err := pkts[0].Text()
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	m, err := pkts[1].Mode()
	require.NoError(t, err)
	assert.Equal(t, ModeRaw, m)

	assert.Equal(t, CmdSuspend, pkts[2].Cmd)
	assert.Nil(t, pkts[2].Data)
}

func TestStartGUIAndRunCommand(t *testing.T) {
	d := NewDecoder(ToServer, "")
	pkts, err := d.Feed(StartGUIPacket(StartGUI{DetachOthers: true, Term: "xterm"}))
	require.NoError(t, err)
	assert.Equal(t, StartGUI{DetachOthers: true, Term: "xterm"}, pkts[0].StartGUI())

	pkts, err = d.Feed(RunCommandPacket(RunCommand{Command: "split-window -h", Pane: 7}))
	require.NoError(t, err)
	rc, err := pkts[0].RunCommand()
	require.NoError(t, err)
	assert.Equal(t, RunCommand{Command: "split-window -h", Pane: 7}, rc)

	pkts, err = d.Feed([]byte(`{"cmd":"start-gui"}` + "\x00"))
	require.NoError(t, err)
	assert.Equal(t, StartGUI{}, pkts[0].StartGUI())
}

func TestDecoderErrors(t *testing.T) {
	tests := []struct {
		name  string
		dir   Direction
		input string
	}{
		{"invalid json", ToServer, "{nope\x00"},
		{"missing cmd", ToServer, `{"data":1}` + "\x00"},
		{"unknown cmd", ToServer, `{"cmd":"explode"}` + "\x00"},
		{"wrong direction", ToServer, `{"cmd":"out","data":"x"}` + "\x00"},
		{"wrong direction to client", ToClient, `{"cmd":"in","data":"x"}` + "\x00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDecoder(tt.dir, "c9").Feed([]byte(tt.input))
			var pe *muxerr.ProtocolError
			require.True(t, errors.As(err, &pe), "want ProtocolError, got %v", err)
			assert.Equal(t, "c9", pe.Client)
		})
	}
}

func TestPayloadErrors(t *testing.T) {
	bad := []string{`"x"`, `[1]`, `[0,80]`, `["a","b"]`, `[24,-1]`}
	for _, data := range bad {
		p := Packet{Cmd: CmdSize, Data: []byte(data)}
		_, _, err := p.Size()
		assert.Error(t, err, data)
	}

	_, err := Packet{Cmd: CmdIn, Data: []byte("3")}.Text()
	assert.Error(t, err)

	_, err = Packet{Cmd: CmdMode, Data: []byte(`"sideways"`)}.Mode()
	assert.Error(t, err)

	_, err = Packet{Cmd: CmdRunCommand, Data: []byte(`{}`)}.RunCommand()
	assert.Error(t, err)
	_, err = Packet{Cmd: CmdRunCommand, Data: []byte(`{"command":"x","pane":-2}`)}.RunCommand()
	assert.Error(t, err)
}

func TestReader(t *testing.T) {
	stream := bytes.Join([][]byte{StartGUIPacket(StartGUI{}), Size(10, 20), In("q")}, nil)
	r := NewReader(bytes.NewReader(stream), ToServer, "")

	var cmds []Cmd
	for {
		p, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		cmds = append(cmds, p.Cmd)
	}
	assert.Equal(t, []Cmd{CmdStartGUI, CmdSize, CmdIn}, cmds)
}

func TestReaderTruncated(t *testing.T) {
	r := NewReader(strings.NewReader(`{"cmd":"in","da`), ToServer, "")
	_, err := r.Next()
	var pe *muxerr.ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReaderDeliversBeforeError(t *testing.T) {
	stream := append(Size(1, 1), []byte("garbage\x00")...)
	r := NewReader(bytes.NewReader(stream), ToServer, "")

	p, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, CmdSize, p.Cmd)

	_, err = r.Next()
	var pe *muxerr.ProtocolError
	assert.True(t, errors.As(err, &pe))
}
