package terminal

import (
	"unicode/utf8"
)

// Parser states.
const (
	stateGround = iota
	stateEscape
	stateEscapeInter
	stateCSIEntry
	stateCSIParam
	stateCSIInter
	stateCSIIgnore
	stateOSC
	stateOSCEscape
	stateDCS
	stateDCSEscape
)

const (
	maxParams     = 32
	maxParamValue = 65535
	maxIntermed   = 2
	maxStringLen  = 4096
)

// handler receives the sequences recognized by a Parser.
type handler interface {
	print(r rune)
	execute(b byte)
	csiDispatch(marker byte, params []int, inter []byte, final byte)
	escDispatch(inter []byte, final byte)
	oscDispatch(kind byte, data []byte)
}

// Parser is a VT500-style byte stream parser. It keeps its state across
// calls to Feed, so sequences and UTF-8 runes may be split over chunks.
// Malformed input is dropped and the parser returns to ground.
type Parser struct {
	h     handler
	state int

	params   []int
	cur      int
	hasCur   bool
	marker   byte
	inter    []byte
	overflow bool

	strKind byte
	str     []byte

	utf8Buf  [utf8.UTFMax]byte
	utf8Len  int
	utf8Need int
}

func newParser(h handler) *Parser {
	return &Parser{
		h:      h,
		params: make([]int, 0, maxParams),
		inter:  make([]byte, 0, maxIntermed),
	}
}

// Feed parses a chunk of output.
func (p *Parser) Feed(data []byte) {
	for _, b := range data {
		p.step(b)
	}
}

func (p *Parser) step(b byte) {
	if p.utf8Need > 0 {
		if b&0xC0 == 0x80 {
			p.utf8Buf[p.utf8Len] = b
			p.utf8Len++
			if p.utf8Len == p.utf8Need {
				r, _ := utf8.DecodeRune(p.utf8Buf[:p.utf8Len])
				p.utf8Need, p.utf8Len = 0, 0
				p.h.print(r)
			}
			return
		}
		// Truncated sequence; emit a replacement and reprocess b.
		p.utf8Need, p.utf8Len = 0, 0
		p.h.print(utf8.RuneError)
	}

	// Controls valid in any state.
	switch b {
	case 0x18, 0x1A: // CAN, SUB
		p.state = stateGround
		return
	case 0x1B:
		switch p.state {
		case stateOSC:
			p.state = stateOSCEscape
			return
		case stateDCS:
			p.state = stateDCSEscape
			return
		}
		p.clear()
		p.state = stateEscape
		return
	}

	switch p.state {
	case stateGround:
		p.ground(b)
	case stateEscape:
		p.escape(b)
	case stateEscapeInter:
		p.escapeInter(b)
	case stateCSIEntry, stateCSIParam:
		p.csiParam(b)
	case stateCSIInter:
		p.csiInter(b)
	case stateCSIIgnore:
		if b >= 0x40 && b <= 0x7E {
			p.state = stateGround
		} else if b < 0x20 {
			p.h.execute(b)
		}
	case stateOSC:
		p.osc(b)
	case stateOSCEscape:
		p.h.oscDispatch(p.strKind, p.str)
		p.state = stateGround
		if b != '\\' {
			p.clear()
			p.state = stateEscape
			p.escape(b)
		}
	case stateDCS:
	case stateDCSEscape:
		if b == '\\' {
			p.state = stateGround
		} else {
			p.state = stateDCS
		}
	}
}

func (p *Parser) ground(b byte) {
	switch {
	case b < 0x20 || b == 0x7F:
		if b != 0x7F {
			p.h.execute(b)
		}
	case b < 0x80:
		p.h.print(rune(b))
	case b&0xE0 == 0xC0:
		p.startUTF8(b, 2)
	case b&0xF0 == 0xE0:
		p.startUTF8(b, 3)
	case b&0xF8 == 0xF0:
		p.startUTF8(b, 4)
	default:
		// Stray continuation or invalid lead byte.
		p.h.print(utf8.RuneError)
	}
}

func (p *Parser) startUTF8(b byte, n int) {
	p.utf8Buf[0] = b
	p.utf8Len = 1
	p.utf8Need = n
}

func (p *Parser) escape(b byte) {
	switch {
	case b < 0x20:
		p.h.execute(b)
	case b == '[':
		p.state = stateCSIEntry
	case b == ']' || b == 'k':
		p.startString(b, stateOSC)
	case b == 'P' || b == 'X' || b == '^' || b == '_':
		p.startString(b, stateDCS)
	case b >= 0x20 && b <= 0x2F:
		p.collect(b)
		p.state = stateEscapeInter
	case b >= 0x30 && b <= 0x7E:
		p.h.escDispatch(p.inter, b)
		p.state = stateGround
	default:
		p.state = stateGround
	}
}

func (p *Parser) escapeInter(b byte) {
	switch {
	case b < 0x20:
		p.h.execute(b)
	case b >= 0x20 && b <= 0x2F:
		p.collect(b)
	case b >= 0x30 && b <= 0x7E:
		p.h.escDispatch(p.inter, b)
		p.state = stateGround
	default:
		p.state = stateGround
	}
}

func (p *Parser) csiParam(b byte) {
	switch {
	case b < 0x20:
		p.h.execute(b)
	case b >= '0' && b <= '9':
		p.state = stateCSIParam
		p.cur = min(p.cur*10+int(b-'0'), maxParamValue)
		p.hasCur = true
	case b == ';' || b == ':':
		p.state = stateCSIParam
		p.pushParam()
		p.hasCur = true
	case b >= '<' && b <= '?':
		if p.state != stateCSIEntry {
			p.state = stateCSIIgnore
			return
		}
		p.marker = b
		p.state = stateCSIParam
	case b >= 0x20 && b <= 0x2F:
		p.finishParams()
		p.collect(b)
		p.state = stateCSIInter
	case b >= 0x40 && b <= 0x7E:
		p.finishParams()
		p.dispatchCSI(b)
	default:
		p.state = stateCSIIgnore
	}
}

func (p *Parser) csiInter(b byte) {
	switch {
	case b < 0x20:
		p.h.execute(b)
	case b >= 0x20 && b <= 0x2F:
		p.collect(b)
	case b >= 0x40 && b <= 0x7E:
		p.dispatchCSI(b)
	default:
		p.state = stateCSIIgnore
	}
}

func (p *Parser) dispatchCSI(final byte) {
	p.state = stateGround
	if p.overflow {
		return
	}
	p.h.csiDispatch(p.marker, p.params, p.inter, final)
}

func (p *Parser) osc(b byte) {
	switch {
	case b == 0x07:
		p.h.oscDispatch(p.strKind, p.str)
		p.state = stateGround
	case b < 0x20:
	default:
		if len(p.str) < maxStringLen {
			p.str = append(p.str, b)
		}
	}
}

func (p *Parser) startString(kind byte, state int) {
	p.strKind = kind
	p.str = p.str[:0]
	p.state = state
}

func (p *Parser) collect(b byte) {
	if len(p.inter) >= maxIntermed {
		p.overflow = true
		return
	}
	p.inter = append(p.inter, b)
}

func (p *Parser) pushParam() {
	if len(p.params) >= maxParams {
		p.overflow = true
	} else {
		p.params = append(p.params, p.cur)
	}
	p.cur = 0
	p.hasCur = false
}

func (p *Parser) finishParams() {
	if p.hasCur {
		p.pushParam()
	}
}

func (p *Parser) clear() {
	p.params = p.params[:0]
	p.inter = p.inter[:0]
	p.cur = 0
	p.hasCur = false
	p.marker = 0
	p.overflow = false
}

// param returns params[i], or def when it is missing or zero.
func param(params []int, i, def int) int {
	if i >= len(params) || params[i] == 0 {
		return def
	}
	return params[i]
}
