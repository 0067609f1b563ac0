// Package protocol frames the packets exchanged between the server and its
// clients.
//
// A packet is a UTF-8 JSON object {"cmd": ..., "data": ...} followed by a
// single NUL byte. The cmd discriminator is read with gjson before any
// other field, so an unknown command is rejected without decoding the
// rest. Packets are built with sjson.
package protocol

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Terminator ends every packet.
const Terminator = 0

// Cmd is a packet discriminator.
type Cmd string

// Client to server.
const (
	CmdRunCommand Cmd = "run-command"
	CmdStartGUI   Cmd = "start-gui"
	CmdIn         Cmd = "in"
	CmdSize       Cmd = "size"
)

// Server to client.
const (
	CmdOut     Cmd = "out"
	CmdSuspend Cmd = "suspend"
	CmdMode    Cmd = "mode"
)

// Direction selects which commands a Decoder accepts.
type Direction int

const (
	// ToServer accepts client to server packets.
	ToServer Direction = iota
	// ToClient accepts server to client packets.
	ToClient
)

func (d Direction) String() string {
	if d == ToClient {
		return "to-client"
	}
	return "to-server"
}

// Allows reports whether cmd may travel in direction d.
func (d Direction) Allows(cmd Cmd) bool {
	switch cmd {
	case CmdRunCommand, CmdStartGUI, CmdIn, CmdSize:
		return d == ToServer
	case CmdOut, CmdSuspend, CmdMode:
		return d == ToClient
	}
	return false
}

// Mode is the terminal mode a client is told to enter.
type Mode string

const (
	ModeRaw     Mode = "raw"
	ModeCooked  Mode = "cooked"
	ModeRestore Mode = "restore"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeRaw || m == ModeCooked || m == ModeRestore
}

// Packet is one decoded packet. Data is the raw JSON of the data field,
// or nil when absent.
type Packet struct {
	Cmd  Cmd
	Data []byte
}

func (p Packet) data() gjson.Result {
	if p.Data == nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(p.Data)
}

// Text returns the string payload of in and out packets.
func (p Packet) Text() (string, error) {
	d := p.data()
	if d.Type != gjson.String {
		return "", fmt.Errorf("%s: data must be a string", p.Cmd)
	}
	return d.String(), nil
}

// Size returns the [rows, cols] payload of a size packet.
func (p Packet) Size() (rows, cols int, err error) {
	d := p.data()
	if !d.IsArray() {
		return 0, 0, fmt.Errorf("size: data must be [rows, cols]")
	}
	arr := d.Array()
	if len(arr) != 2 || arr[0].Type != gjson.Number || arr[1].Type != gjson.Number {
		return 0, 0, fmt.Errorf("size: data must be [rows, cols]")
	}
	rows, cols = int(arr[0].Int()), int(arr[1].Int())
	if rows <= 0 || cols <= 0 {
		return 0, 0, fmt.Errorf("size: %dx%d is not positive", rows, cols)
	}
	return rows, cols, nil
}

// StartGUI is the start-gui payload.
type StartGUI struct {
	DetachOthers bool
	Term         string
}

// StartGUI returns the start-gui payload. Missing fields take their zero
// values.
func (p Packet) StartGUI() StartGUI {
	d := p.data()
	return StartGUI{
		DetachOthers: d.Get("detach-others").Bool(),
		Term:         d.Get("term").String(),
	}
}

// RunCommand is the run-command payload. Pane is 0 when not given.
type RunCommand struct {
	Command string
	Pane    uint32
}

// RunCommand returns the run-command payload.
func (p Packet) RunCommand() (RunCommand, error) {
	d := p.data()
	cmd := d.Get("command")
	if cmd.Type != gjson.String {
		return RunCommand{}, fmt.Errorf("run-command: missing command")
	}
	rc := RunCommand{Command: cmd.String()}
	if pane := d.Get("pane"); pane.Exists() {
		if pane.Type != gjson.Number || pane.Int() < 0 {
			return RunCommand{}, fmt.Errorf("run-command: bad pane %s", pane.Raw)
		}
		rc.Pane = uint32(pane.Uint())
	}
	return rc, nil
}

// Mode returns the payload of a mode packet.
func (p Packet) Mode() (Mode, error) {
	m := Mode(p.data().String())
	if !m.Valid() {
		return "", fmt.Errorf("mode: unknown mode %q", m)
	}
	return m, nil
}

// Encode builds a packet. data may be nil for packets without a payload.
func Encode(cmd Cmd, data any) []byte {
	b, err := sjson.SetBytes([]byte("{}"), "cmd", string(cmd))
	if err == nil && data != nil {
		if s, ok := data.(string); ok {
			data = strings.ToValidUTF8(s, "\uFFFD")
		}
		b, err = sjson.SetBytes(b, "data", data)
	}
	if err != nil {
		// sjson fails only on values json.Marshal rejects.
		panic(fmt.Sprintf("protocol: encoding %s: %v", cmd, err))
	}
	return append(b, Terminator)
}

// Out builds an out packet.
func Out(s string) []byte {
	return Encode(CmdOut, s)
}

// In builds an in packet. Invalid UTF-8 is replaced.
func In(s string) []byte {
	return Encode(CmdIn, s)
}

// SetMode builds a mode packet.
func SetMode(m Mode) []byte {
	return Encode(CmdMode, string(m))
}

// Suspend builds a suspend packet.
func Suspend() []byte {
	return Encode(CmdSuspend, nil)
}

// Size builds a size packet.
func Size(rows, cols int) []byte {
	return Encode(CmdSize, []int{rows, cols})
}

// StartGUIPacket builds a start-gui packet.
func StartGUIPacket(sg StartGUI) []byte {
	return Encode(CmdStartGUI, map[string]any{
		"detach-others": sg.DetachOthers,
		"term":          sg.Term,
	})
}

// RunCommandPacket builds a run-command packet. A zero pane is omitted.
func RunCommandPacket(rc RunCommand) []byte {
	data := map[string]any{"command": rc.Command}
	if rc.Pane != 0 {
		data["pane"] = rc.Pane
	}
	return Encode(CmdRunCommand, data)
}
