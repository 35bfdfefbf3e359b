package telnet

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sourcemud/mud-telnet/lib/protocol"
	"github.com/sourcemud/mud-telnet/lib/util"
	"github.com/sourcemud/mud-telnet/lib/zmp"
)

const telnetHelp = "Telnet commands:\n" +
	" !color <on|off> -- Enable or disable ANSI color.\n" +
	" !screen <w> <h> -- Set the width and height of your display.\n" +
	" !echo <on|off>  -- Enable or disable forced server echoing.\n" +
	" !help           -- Show this message.\n"

var eraseEcho = []byte("\b \b")

// data handles one byte of in-band input.
func (s *Session) data(b byte) {
	switch {
	case b == '\n':
		s.endLine()
	case b == 127 || b == '\b':
		s.erase()
	case b >= 0x20:
		s.appendInput(b)
	default:
		// CR, NUL and other control bytes are not part of a line.
	}
}

func (s *Session) appendInput(b byte) {
	if err := s.line.AppendByte(b); err != nil {
		if !s.truncating {
			s.truncating = true
			s.log.WithError(util.ErrLineTooLong).WithField("limit", s.line.Cap()).Warn("Truncating input line")
			_, _ = s.WriteString(MarkAdmin + "Your input line is too long and has been truncated to " +
				strconv.Itoa(s.line.Cap()) + " characters." + MarkNormal + "\n")
		}
		return
	}

	if s.echoing() {
		if b == protocol.IAC {
			s.pending.Write([]byte{protocol.IAC, protocol.IAC})
		} else {
			s.pending.WriteByte(b)
		}
	}
}

// erase removes the last character of the current line.
func (s *Session) erase() {
	erased := false
	for {
		b, ok := s.line.Last()
		if !ok {
			break
		}
		s.line.Unappend(1)
		erased = true
		// Stop once the lead byte of a multi-byte character is gone.
		if b < 0x80 || b >= 0xC0 {
			break
		}
	}
	if erased && s.echoing() {
		s.pending.Write(eraseEcho)
	}
}

func (s *Session) endLine() {
	if s.echoing() {
		s.pending.Write(crlf)
	}
	s.needNewline = false
	s.needPrompt = true

	line := strings.ToValidUTF8(string(s.line.Bytes()), "?")
	s.line.Clear()
	s.truncating = false

	if len(s.queued) >= s.cfg.TypeAhead {
		if !s.typeAheadFull {
			s.typeAheadFull = true
			_, _ = s.WriteString(MarkAdmin + "You only have " + strconv.Itoa(s.cfg.TypeAhead) +
				" type-ahead lines." + MarkNormal + "\n")
		}
		return
	}
	s.queued = append(s.queued, line)
}

// command handles IAC commands other than negotiation and subnegotiation.
func (s *Session) command(cmd byte) {
	switch cmd {
	case protocol.EC:
		s.erase()
	case protocol.EL:
		s.line.Clear()
		s.truncating = false
	case protocol.AYT:
		s.pending.WriteString("\r\n[Yes]\r\n")
	default:
		s.log.WithField("command", protocol.CommandName(cmd)).Debug("Ignoring telnet command")
	}
}

// negotiate applies a WILL/WONT/DO/DONT from the client.
func (s *Session) negotiate(cmd, opt byte) {
	reply, change := s.neg.Receive(cmd, opt)
	dir := DirectionOf(cmd)

	s.log.WithFields(logrus.Fields{
		"command": protocol.CommandName(cmd),
		"option":  protocol.OptionName(opt),
		"state":   s.neg.State(dir, opt).String(),
	}).Debug("Negotiation received")

	if reply != nil {
		s.pending.Write(reply)
	}

	if cmd == protocol.WONT && opt == protocol.OptNAWS {
		s.setSize(s.cfg.Width, s.cfg.Height)
		s.notifyCapabilities()
	}

	switch change {
	case Activated:
		s.activate(dir, opt)
	case Deactivated:
		s.deactivate(dir, opt)
	}
}

func (s *Session) activate(dir Direction, opt byte) {
	switch {
	case dir == Local && opt == protocol.OptMCCP2:
		s.startCompression()

	case dir == Local && opt == protocol.OptZMP:
		s.SendZMP(zmp.CmdIdent, s.cfg.Name, s.cfg.Version, s.cfg.About)
		s.SendZMP(zmp.CmdCheck, "net.sourcemud.")
		s.SendZMP(zmp.CmdCheck, "color.define")
		s.notifyCapabilities()

	case dir == Local && opt == protocol.OptEOR:
		s.notifyCapabilities()

	case dir == Remote && opt == protocol.OptTTYPE:
		s.pending.Write(protocol.Subnegotiation(protocol.OptTTYPE, []byte{protocol.TelQualSEND}))

	case dir == Remote && opt == protocol.OptNewEnviron:
		payload := append([]byte{protocol.TelQualSEND, protocol.EnvVar}, "SYSTEMTYPE"...)
		s.pending.Write(protocol.Subnegotiation(protocol.OptNewEnviron, payload))
	}
}

func (s *Session) deactivate(dir Direction, opt byte) {
	switch {
	case dir == Local && opt == protocol.OptMCCP2:
		s.stopCompression()

	case dir == Local && opt == protocol.OptZMP:
		s.out.zmpColor = false
		s.notifyCapabilities()

	case dir == Local && opt == protocol.OptEOR:
		s.notifyCapabilities()
	}
}

// processQueued hands completed lines to the mode, stopping if the session
// closes part way. Lines queued while it runs are picked up by the same loop.
func (s *Session) processQueued() {
	if s.busy {
		return
	}
	s.busy = true
	defer func() { s.busy = false }()

	for len(s.queued) > 0 && !s.closed.Load() {
		line := s.queued[0]
		s.queued = s.queued[1:]
		s.processLine(line)
	}
	s.queued = s.queued[:0]
	s.typeAheadFull = false
}

func (s *Session) processLine(line string) {
	s.needPrompt = true

	if strings.HasPrefix(line, "!") || s.mode == nil {
		s.telnetCommand(strings.TrimPrefix(line, "!"))
		return
	}
	s.mode.Process(s, line)
}

// telnetCommand handles the !-prefixed commands that adjust the
// connection itself.
func (s *Session) telnetCommand(cmd string) {
	args := strings.Fields(cmd)

	switch {
	case len(args) == 2 && args[0] == "color":
		switch args[1] {
		case "on":
			s.out.ansi = true
			_, _ = s.WriteString(MarkAdmin + "ANSI Color Enabled" + MarkNormal + "\n")
			s.notifyCapabilities()
			return
		case "off":
			s.out.ansi = false
			_, _ = s.WriteString("ANSI Color Disabled\n")
			s.notifyCapabilities()
			return
		}

	case len(args) == 3 && args[0] == "screen":
		w, errW := strconv.Atoi(args[1])
		h, errH := strconv.Atoi(args[2])
		if errW == nil && errH == nil && w >= MinScreenWidth && h >= MinScreenHeight {
			s.setSize(w, h)
			_, _ = s.WriteString(MarkAdmin + "Screen: " + strconv.Itoa(w) + "x" + strconv.Itoa(h) + MarkNormal + "\n")
			s.notifyCapabilities()
			return
		}

	case len(args) == 2 && args[0] == "echo":
		switch args[1] {
		case "on":
			s.forceEcho = true
			_, _ = s.WriteString(MarkAdmin + "Echo Enabled" + MarkNormal + "\n")
			return
		case "off":
			s.forceEcho = false
			if s.wantEcho {
				s.pending.Write(s.neg.Disable(Local, protocol.OptEcho))
			}
			_, _ = s.WriteString(MarkAdmin + "Echo Disabled" + MarkNormal + "\n")
			return
		}
	}

	_, _ = s.WriteString(telnetHelp)
}
