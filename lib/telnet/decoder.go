package telnet

import (
	"github.com/sourcemud/mud-telnet/lib/buffer"
	"github.com/sourcemud/mud-telnet/lib/protocol"
)

type inputState uint8

const (
	inText inputState = iota
	inIAC
	inNegotiate
	inSB
	inSBIAC
)

// decoderEvents receives what the decoder finds in the byte stream.
type decoderEvents interface {
	data(b byte)
	command(cmd byte)
	negotiate(cmd, opt byte)
	// payload is only valid for the duration of the call.
	subnegotiate(opt byte, payload []byte)
	malformed(reason string)
}

// decoder splits a raw telnet byte stream into data bytes, commands,
// negotiations and unstuffed subnegotiation blocks. State is kept across
// calls so sequences may be split over reads.
type decoder struct {
	state    inputState
	cmd      byte
	sb       *buffer.Chunk
	overflow bool
	ev       decoderEvents
}

func newDecoder(maxSub int, ev decoderEvents) *decoder {
	return &decoder{
		sb: buffer.NewChunk(maxSub),
		ev: ev,
	}
}

func (d *decoder) decode(p []byte) {
	for _, b := range p {
		d.step(b)
	}
}

func (d *decoder) step(b byte) {
	switch d.state {
	case inText:
		if b == protocol.IAC {
			d.state = inIAC
			return
		}
		d.ev.data(b)

	case inIAC:
		d.afterIAC(b)

	case inNegotiate:
		d.state = inText
		d.ev.negotiate(d.cmd, b)

	case inSB:
		if b == protocol.IAC {
			d.state = inSBIAC
			return
		}
		d.collect(b)

	case inSBIAC:
		switch b {
		case protocol.IAC:
			d.collect(protocol.IAC)
			d.state = inSB
		case protocol.SE:
			d.state = inText
			d.finishBlock()
		default:
			// The block was never terminated; drop it and treat b as the
			// command that followed IAC.
			d.ev.malformed("IAC " + protocol.CommandName(b) + " inside subnegotiation")
			d.resetBlock()
			d.afterIAC(b)
		}
	}
}

func (d *decoder) afterIAC(b byte) {
	d.state = inText
	switch b {
	case protocol.IAC:
		d.ev.data(protocol.IAC)
	case protocol.WILL, protocol.WONT, protocol.DO, protocol.DONT:
		d.cmd = b
		d.state = inNegotiate
	case protocol.SB:
		d.resetBlock()
		d.state = inSB
	default:
		d.ev.command(b)
	}
}

func (d *decoder) collect(b byte) {
	if d.overflow {
		return
	}
	if err := d.sb.AppendByte(b); err != nil {
		d.overflow = true
	}
}

func (d *decoder) finishBlock() {
	defer d.resetBlock()

	if d.overflow {
		d.ev.malformed("subnegotiation exceeds size limit")
		return
	}
	if d.sb.Empty() {
		d.ev.malformed("empty subnegotiation")
		return
	}
	block := d.sb.Bytes()
	d.ev.subnegotiate(block[0], block[1:])
}

func (d *decoder) resetBlock() {
	d.sb.Clear()
	d.overflow = false
}
