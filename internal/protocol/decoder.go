package protocol

import (
	"bytes"
	"errors"
	"io"

	"github.com/tidwall/gjson"

	"github.com/dshills/muxstorm/internal/muxerr"
)

// MaxPacket bounds a single packet, terminator excluded.
const MaxPacket = 4 << 20

// Decoder splits a byte stream into packets. Partial packets are kept
// until the rest arrives.
type Decoder struct {
	dir    Direction
	client string
	buf    []byte
}

// NewDecoder creates a decoder accepting packets for dir. client names the
// peer in ProtocolErrors.
func NewDecoder(dir Direction, client string) *Decoder {
	return &Decoder{dir: dir, client: client}
}

// Feed appends data and returns every complete packet. After an error the
// stream is unusable and the connection should be dropped.
func (d *Decoder) Feed(data []byte) ([]Packet, error) {
	d.buf = append(d.buf, data...)
	var out []Packet
	for {
		i := bytes.IndexByte(d.buf, Terminator)
		if i < 0 {
			break
		}
		p, err := d.decode(d.buf[:i])
		d.buf = d.buf[i+1:]
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	if len(d.buf) > MaxPacket {
		return out, &muxerr.ProtocolError{Client: d.client, Reason: "packet too large"}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return out, nil
}

// Buffered returns the number of bytes of an incomplete packet.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

func (d *Decoder) decode(b []byte) (Packet, error) {
	if !gjson.ValidBytes(b) {
		return Packet{}, &muxerr.ProtocolError{Client: d.client, Reason: "invalid JSON"}
	}
	cmd := gjson.GetBytes(b, "cmd")
	if cmd.Type != gjson.String {
		return Packet{}, &muxerr.ProtocolError{Client: d.client, Reason: "missing cmd"}
	}
	c := Cmd(cmd.String())
	if !d.dir.Allows(c) {
		return Packet{}, &muxerr.ProtocolError{Client: d.client, Reason: "unknown cmd " + cmd.Raw}
	}
	p := Packet{Cmd: c}
	if data := gjson.GetBytes(b, "data"); data.Exists() {
		p.Data = []byte(data.Raw)
	}
	return p, nil
}

// Reader reads packets from a stream.
type Reader struct {
	r       io.Reader
	dec     *Decoder
	pending []Packet
	err     error
	buf     []byte
}

// NewReader creates a packet reader over r.
func NewReader(r io.Reader, dir Direction, client string) *Reader {
	return &Reader{r: r, dec: NewDecoder(dir, client), buf: make([]byte, 32*1024)}
}

// Next returns the next packet. It returns io.EOF when the peer closes the
// stream between packets. Packets decoded before a protocol error are
// delivered before the error.
func (r *Reader) Next() (Packet, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return Packet{}, r.err
		}
		n, err := r.r.Read(r.buf)
		if n > 0 {
			pkts, derr := r.dec.Feed(r.buf[:n])
			r.pending = append(r.pending, pkts...)
			if derr != nil {
				r.err = derr
				continue
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && r.dec.Buffered() > 0 {
				err = &muxerr.ProtocolError{Client: r.dec.client, Reason: "truncated packet", Err: io.ErrUnexpectedEOF}
			}
			r.err = err
		}
	}
	p := r.pending[0]
	r.pending = r.pending[1:]
	return p, nil
}
