package telnet

import (
	"bytes"
	"strconv"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"
	"github.com/sirupsen/logrus"

	"github.com/sourcemud/mud-telnet/lib/buffer"
	"github.com/sourcemud/mud-telnet/lib/protocol"
	"github.com/sourcemud/mud-telnet/lib/zmp"
)

const (
	// TabStop is the column multiple a tab advances to.
	TabStop = 4

	// AutoIndent is the extra hanging indent applied to wrapped
	// continuation lines while auto-indent is on.
	AutoIndent = 2

	// maxEscape bounds one inline markup or ANSI sequence.
	maxEscape = 32

	indentRun = 16
)

const spaces = "                "

var crlf = []byte("\r\n")

type outputState uint8

const (
	outText outputState = iota
	outEscape
	outCustom
	outNative
)

// formatter turns application text into wrapped, indented, coloured wire
// bytes. Completed words are collected in chunk and moved to out once the
// wrap decision for them is made.
type formatter struct {
	out *bytes.Buffer
	log *logrus.Entry

	chunk      *buffer.Chunk
	chunkWidth int

	// partial UTF-8 rune whose width is not yet counted
	runeBuf [utf8.UTFMax]byte
	runeLen int

	state outputState
	esc   []byte

	width        int
	curCol       int
	margin       int
	softBreak    bool
	continuation bool
	autoIndent   bool

	// colors is the stack of open colour types, innermost last.
	colors []ColorType

	ansi     bool
	zmpColor bool
	colorOf  func(ColorType) ColorValue
}

func newFormatter(out *bytes.Buffer, chunkSize, width int, log *logrus.Entry) *formatter {
	return &formatter{
		out:     out,
		log:     log,
		chunk:   buffer.NewChunk(chunkSize),
		esc:     make([]byte, 0, maxEscape),
		width:   width,
		colorOf: DefaultPalette().Default,
	}
}

// write feeds application text through the output state machine.
func (f *formatter) write(p []byte) {
	for _, c := range p {
		switch f.state {
		case outText:
			if c < utf8.RuneSelf || c == protocol.IAC {
				f.flushRune()
			}
			f.text(c)

		case outEscape:
			switch c {
			case '!':
				f.esc = f.esc[:0]
				f.state = outCustom
			case '[':
				f.esc = append(f.esc[:0], 0x1b, '[')
				f.state = outNative
			default:
				f.state = outText
			}

		case outCustom:
			if c != '!' {
				if len(f.esc) < maxEscape {
					f.esc = append(f.esc, c)
				}
				continue
			}
			f.markup(string(f.esc))
			f.state = outText

		case outNative:
			if len(f.esc) < maxEscape {
				f.esc = append(f.esc, c)
			}
			if isAlpha(c) {
				if f.ansi {
					f.add(protocol.AppendEscaped(nil, f.esc), 0)
				}
				f.state = outText
			}
		}
	}
}

func (f *formatter) text(c byte) {
	switch c {
	case ' ':
		f.endChunk()
		if f.softBreak {
			return
		}
		if f.width > 0 && f.curCol+1 >= f.width-2 {
			f.lineBreak()
			f.softBreak = true
			f.continuation = true
			return
		}
		f.indent()
		f.out.WriteByte(' ')
		f.curCol++

	case '\n':
		f.endChunk()
		if !f.softBreak {
			f.lineBreak()
		}
		f.softBreak = false
		f.continuation = false

	case '\r':
		// Line ends are always written as CRLF.

	case 0x1b:
		f.state = outEscape

	case '\t':
		f.endChunk()
		f.indent()
		n := TabStop - f.curCol%TabStop
		f.out.WriteString(spaces[:n])
		f.curCol += n

	case protocol.IAC:
		f.add([]byte{protocol.IAC, protocol.IAC}, 1)

	default:
		if c >= utf8.RuneSelf {
			f.addRuneByte(c)
			return
		}
		w := 1
		if c < 0x20 {
			w = 0
		}
		f.add([]byte{c}, w)
	}
}

// addRuneByte adds one byte of a multi-byte character; its column width is
// counted once the character is complete.
func (f *formatter) addRuneByte(c byte) {
	f.add([]byte{c}, 0)
	f.runeBuf[f.runeLen] = c
	f.runeLen++
	if !utf8.FullRune(f.runeBuf[:f.runeLen]) {
		return
	}
	r, size := utf8.DecodeRune(f.runeBuf[:f.runeLen])
	if r == utf8.RuneError && size <= 1 {
		f.chunkWidth += f.runeLen
	} else {
		f.chunkWidth += runewidth.RuneWidth(r)
	}
	f.runeLen = 0
}

// flushRune counts an incomplete character as one column per byte.
func (f *formatter) flushRune() {
	f.chunkWidth += f.runeLen
	f.runeLen = 0
}

// add appends p to the current word as one unit of the given visible width.
func (f *formatter) add(p []byte, width int) {
	if !f.chunk.Fits(len(p)) {
		f.log.WithField("chunk_size", f.chunk.Cap()).Warn("Output chunk full, forcing a break")
		f.endChunk()
	}

	if err := f.chunk.Append(p); err != nil {
		n := f.chunk.AppendPartial(p)
		f.log.WithField("dropped", len(p)-n).Warn("Output sequence larger than chunk, truncated")
	}
	f.chunkWidth += width
}

// endChunk decides where the current word goes and moves it to out.
func (f *formatter) endChunk() {
	if f.chunk.Empty() {
		return
	}

	f.indent()
	if f.width > 0 && f.chunkWidth+f.curCol >= f.width-2 && f.curCol > f.indentTarget() {
		f.lineBreak()
		f.continuation = true
		f.indent()
	}

	f.out.Write(f.chunk.Bytes())
	f.curCol += f.chunkWidth
	f.chunk.Clear()
	f.chunkWidth = 0
	f.softBreak = false
}

func (f *formatter) lineBreak() {
	f.out.Write(crlf)
	f.curCol = 0
}

func (f *formatter) indentTarget() int {
	if f.autoIndent && f.continuation {
		return f.margin + AutoIndent
	}
	return f.margin
}

// indent pads the current line out to the margin.
func (f *formatter) indent() {
	target := f.indentTarget()
	for f.curCol < target {
		n := min(target-f.curCol, indentRun)
		f.out.WriteString(spaces[:n])
		f.curCol += n
	}
}

func (f *formatter) setIndent(n int) {
	f.endChunk()
	f.margin = n
}

// markup applies one ESC ! code ! sequence. Unknown or empty codes are
// ignored.
func (f *formatter) markup(code string) {
	if code == "" {
		return
	}

	switch code[0] {
	case 'C':
		if !f.ansi && !f.zmpColor {
			return
		}
		n, err := strconv.Atoi(code[1:])
		if err != nil {
			return
		}
		if n == 0 {
			if f.ansi && !f.zmpColor {
				f.add([]byte(ANSINormal), 0)
			}
			if len(f.colors) > 0 {
				f.colors = f.colors[:len(f.colors)-1]
			}
			if f.zmpColor || len(f.colors) > 0 {
				f.useColor()
			}
			return
		}
		if t := ColorType(n); t.Valid() {
			f.colors = append(f.colors, t)
			f.useColor()
		}

	case 'I':
		n, err := strconv.Atoi(code[1:])
		if err == nil && n >= 0 {
			f.setIndent(n)
		}

	case 'A':
		f.autoIndent = code[1:] == "1"
	}
}

// useColor tells the client about the colour now on top of the stack.
// ZMP clients are sent the colour type, "0" once the stack is empty.
func (f *formatter) useColor() {
	top := ColorType(0)
	if len(f.colors) > 0 {
		top = f.colors[len(f.colors)-1]
	}
	if f.zmpColor {
		f.add(zmp.Encode("color.use", strconv.Itoa(int(top))), 0)
		return
	}
	f.add([]byte(f.colorOf(top).ANSI()), 0)
}

// closeColors resets the client if any colour is still open.
func (f *formatter) closeColors() {
	if len(f.colors) == 0 {
		return
	}
	f.colors = f.colors[:0]
	switch {
	case f.zmpColor:
		f.add(zmp.Encode("color.use", "0"), 0)
	case f.ansi:
		f.add([]byte(ANSINormal), 0)
	}
}

// finish ends the current word, counting any partial character.
func (f *formatter) finish() {
	f.flushRune()
	f.endChunk()
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
