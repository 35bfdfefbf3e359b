package telnet

import (
	"encoding/binary"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/sourcemud/mud-telnet/lib/mccp"
	"github.com/sourcemud/mud-telnet/lib/protocol"
	"github.com/sourcemud/mud-telnet/lib/util"
)

const win32Warning = "\n---\n" + MarkAdmin + "Warning:" + MarkNormal +
	" this server has detected that you are using the standard Windows telnet program." +
	" Server-side echoing has been enabled. You may disable it by typing " +
	MarkAdmin + "!echo off" + MarkNormal + " at any time.\n---\n"

// subnegotiate routes a completed subnegotiation block.
func (s *Session) subnegotiate(opt byte, payload []byte) {
	log := s.log.WithFields(logrus.Fields{
		"option": protocol.OptionName(opt),
		"size":   len(payload),
	})

	switch opt {
	case protocol.OptNAWS:
		s.handleNAWS(log, payload)
	case protocol.OptTTYPE:
		s.handleTTYPE(log, payload)
	case protocol.OptNewEnviron:
		s.handleEnviron(log, payload)
	case protocol.OptZMP:
		s.handleZMP(log, payload)
	case protocol.OptMCCP2:
		log.Debug("Ignoring compression block from client")
	default:
		log.Debug("Ignoring subnegotiation for unknown option")
	}
}

func (s *Session) malformed(reason string) {
	s.log.WithError(util.ErrMalformedBlock).WithField("reason", reason).Warn("Discarding malformed input")
}

func (s *Session) handleNAWS(log *logrus.Entry, payload []byte) {
	if len(payload) != 4 {
		log.WithError(util.ErrMalformedBlock).Warn("Bad window size report")
		return
	}

	width := int(binary.BigEndian.Uint16(payload[0:2]))
	height := int(binary.BigEndian.Uint16(payload[2:4]))
	if width == 0 {
		width = s.cfg.Width
	}
	if height == 0 {
		height = s.cfg.Height
	}

	s.setSize(width, height)
	log.WithFields(logrus.Fields{"width": width, "height": height}).Debug("Window size")
	s.notifyCapabilities()
}

func (s *Session) handleTTYPE(log *logrus.Entry, payload []byte) {
	if len(payload) < 2 || payload[0] != protocol.TelQualIS {
		log.WithError(util.ErrMalformedBlock).Warn("Bad terminal type report")
		return
	}

	s.terminalType = string(payload[1:])
	name := strings.ToUpper(s.terminalType)
	if strings.HasPrefix(name, "XTERM") {
		s.xterm = true
	}
	if name == "ANSI" {
		s.ansiTerm = true
	}

	if s.xterm {
		s.pending.WriteString("\x1b]2;" + s.cfg.Name + "\a")
	}

	log.WithField("terminal", s.terminalType).Debug("Terminal type")
	s.notifyCapabilities()
}

func (s *Session) handleEnviron(log *logrus.Entry, payload []byte) {
	if len(payload) < 1 || (payload[0] != protocol.TelQualIS && payload[0] != protocol.TelQualINFO) {
		log.WithError(util.ErrMalformedBlock).Warn("Bad environment report")
		return
	}

	for name, value := range parseEnviron(payload[1:]) {
		s.environ[name] = value
	}

	if s.environ["SYSTEMTYPE"] == "WIN32" && !s.forceEcho {
		// Windows telnet never echoes locally once negotiation starts.
		s.forceEcho = true
		_, _ = s.WriteString(win32Warning)
		log.Info("Windows telnet detected, forcing server echo")
	}
}

// parseEnviron decodes VAR/USERVAR name VALUE value sequences.
func parseEnviron(data []byte) map[string]string {
	vars := make(map[string]string)

	var name, value []byte
	var cur *[]byte
	inVar := false

	done := func() {
		if inVar && len(name) > 0 {
			vars[string(name)] = string(value)
		}
		name, value = nil, nil
		cur = nil
		inVar = false
	}

	for i := 0; i < len(data); i++ {
		switch b := data[i]; b {
		case protocol.EnvVar, protocol.EnvUserVar:
			done()
			inVar = true
			cur = &name
		case protocol.EnvValue:
			if inVar {
				value = []byte{}
				cur = &value
			}
		case protocol.EnvEsc:
			if i+1 < len(data) {
				i++
				if cur != nil {
					*cur = append(*cur, data[i])
				}
			}
		default:
			if cur != nil {
				*cur = append(*cur, b)
			}
		}
	}
	done()

	return vars
}

func (s *Session) handleZMP(log *logrus.Entry, payload []byte) {
	if !s.neg.Enabled(Local, protocol.OptZMP) {
		log.Debug("Ignoring ZMP block before negotiation")
		return
	}

	handled, err := s.registry.Dispatch(s, payload)
	if err != nil {
		log.WithError(err).Warn("Discarding malformed ZMP block")
		return
	}
	if !handled {
		log.Debug("Unknown ZMP command")
	}
}

// startCompression switches the outbound stream to MCCP2. Everything
// queued so far, plus the start marker, goes out uncompressed.
func (s *Session) startCompression() {
	if s.compressor != nil {
		return
	}

	c, err := mccp.NewCompressor(s.cfg.CompressionLevel)
	if err != nil {
		s.log.WithError(err).Warn("Compression unavailable, continuing uncompressed")
		s.pending.Write(s.neg.Decline(Local, protocol.OptMCCP2))
		return
	}

	s.pending.Write(protocol.Subnegotiation(protocol.OptMCCP2, nil))
	s.wire = append(s.wire, s.pending.Bytes()...)
	s.pending.Reset()
	s.compressor = c

	s.log.Debug("Compression started")
	s.notifyCapabilities()
}

// stopCompression ends the MCCP2 stream after the client turns it off.
func (s *Session) stopCompression() {
	if s.compressor == nil {
		return
	}

	// Output queued before the client's refusal still belongs to the stream.
	s.out.finish()
	if s.pending.Len() > 0 {
		z, err := s.compressor.Compress(s.pending.Bytes())
		if err == nil {
			s.wire = append(s.wire, z...)
		}
		s.pending.Reset()
	}

	tail, err := s.compressor.Close()
	if err != nil {
		s.log.WithError(err).Warn("Failed to finalize compression stream")
	}
	s.wire = append(s.wire, tail...)

	s.log.WithFields(compressionFields(s.compressor)).Debug("Compression stopped")
	s.compressor = nil
	s.notifyCapabilities()
}

// compressionFields describes a finished stream for the log.
func compressionFields(c *mccp.Compressor) logrus.Fields {
	in, out := c.Stats()
	return logrus.Fields{
		"in":    in,
		"out":   out,
		"ratio": c.Ratio(),
	}
}
