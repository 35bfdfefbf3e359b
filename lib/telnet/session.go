// Package telnet implements the per-connection telnet engine used by MUD
// servers: option negotiation, input line assembly, subnegotiation
// handling, word-wrapped colour output, MCCP2 compression and the ZMP
// application channel.
//
// A Session is not safe for concurrent use. The caller runs it from one
// reactor at a time: Receive for inbound bytes, Flush after each batch of
// output and CheckTimeout on a periodic tick.
package telnet

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sourcemud/mud-telnet/lib/buffer"
	"github.com/sourcemud/mud-telnet/lib/mccp"
	"github.com/sourcemud/mud-telnet/lib/protocol"
	"github.com/sourcemud/mud-telnet/lib/util"
	"github.com/sourcemud/mud-telnet/lib/zmp"
)

// IdleNotice is sent to a client disconnected by CheckTimeout.
const IdleNotice = "You are being disconnected for lack of activity."

// Options configures a new Session.
type Options struct {
	// ID identifies the session in logs. Empty means a new UUID.
	ID string

	// RemoteAddr is the peer address, used for logging.
	RemoteAddr string

	Config   Config
	Palette  *Palette
	Registry *zmp.Registry
	Logger   *logrus.Entry

	// Mode is installed after the initial negotiation offers are queued.
	Mode Mode
}

// Session is one client connection's protocol engine.
type Session struct {
	id        string
	remote    string
	cfg       Config
	log       *logrus.Entry
	transport io.WriteCloser
	palette   *Palette
	registry  *zmp.Registry

	neg *Negotiator
	dec *decoder
	out *formatter

	// pending holds formatted, uncompressed bytes; wire holds bytes ready
	// for the transport.
	pending    bytes.Buffer
	wire       []byte
	compressor *mccp.Compressor

	line           *buffer.Chunk
	truncating     bool
	queued         []string
	typeAheadFull  bool
	busy           bool
	mode           Mode
	colorOverrides [NumColorTypes]ColorValue

	height       int
	terminalType string
	xterm        bool
	ansiTerm     bool
	environ      map[string]string
	zmpSupport   map[string]bool

	wantEcho  bool
	forceEcho bool

	needPrompt  bool
	needNewline bool

	lastActivity time.Time
	writeFailed  bool
	closed       atomic.Bool
	done         chan struct{}
}

// NewSession creates a session writing to t and queues the initial
// negotiation offers. Nothing is written until the first Flush.
func NewSession(t io.WriteCloser, opts Options) *Session {
	cfg := opts.Config.withDefaults()

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithFields(logrus.Fields{
		"session": id,
		"remote":  opts.RemoteAddr,
	})

	palette := opts.Palette
	if palette == nil {
		palette = DefaultPalette()
	}

	registry := opts.Registry
	if registry == nil {
		registry = zmp.NewRegistry()
		_ = zmp.RegisterBuiltins(registry, cfg.Now)
		registry.Seal()
	}

	s := &Session{
		id:           id,
		remote:       opts.RemoteAddr,
		cfg:          cfg,
		log:          log,
		transport:    t,
		palette:      palette,
		registry:     registry,
		neg:          NewNegotiator(),
		line:         buffer.NewChunk(cfg.MaxLineLength),
		height:       cfg.Height,
		environ:      make(map[string]string),
		zmpSupport:   make(map[string]bool),
		wantEcho:     true,
		lastActivity: cfg.Now(),
		done:         make(chan struct{}),
	}
	for i := range s.colorOverrides {
		s.colorOverrides[i] = -1
	}

	s.dec = newDecoder(cfg.MaxSubnegotiation, s)
	s.out = newFormatter(&s.pending, cfg.ChunkSize, cfg.Width, log)
	s.out.ansi = cfg.Color
	s.out.colorOf = s.Color

	s.neg.Support(Local, protocol.OptEcho, true)
	s.neg.Support(Local, protocol.OptSGA, true)
	s.neg.Support(Local, protocol.OptEOR, true)
	s.neg.Support(Local, protocol.OptMCCP2, cfg.Compression)
	s.neg.Support(Local, protocol.OptZMP, cfg.ZMP)
	s.neg.Support(Remote, protocol.OptTTYPE, true)
	s.neg.Support(Remote, protocol.OptNAWS, true)
	s.neg.Support(Remote, protocol.OptNewEnviron, true)

	s.request(Local, protocol.OptEOR)
	if cfg.ZMP {
		s.request(Local, protocol.OptZMP)
	}
	s.request(Remote, protocol.OptNewEnviron)
	s.request(Remote, protocol.OptTTYPE)
	s.request(Remote, protocol.OptNAWS)
	if cfg.Compression {
		s.request(Local, protocol.OptMCCP2)
	}

	if opts.Mode != nil {
		_ = s.SetMode(opts.Mode)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the peer address given at creation.
func (s *Session) RemoteAddr() string {
	return s.remote
}

// Logger returns the session's log entry.
func (s *Session) Logger() *logrus.Entry {
	return s.log
}

// Negotiator exposes the option table, mainly for inspection.
func (s *Session) Negotiator() *Negotiator {
	return s.neg
}

// Receive processes bytes read from the transport. Completed lines are
// handed to the mode before Receive returns.
func (s *Session) Receive(p []byte) {
	if s.closed.Load() {
		return
	}
	s.lastActivity = s.cfg.Now()

	s.busy = true
	s.dec.decode(p)
	s.busy = false

	s.processQueued()
}

// Write formats application text (which may contain inline markup) for
// output. It implements io.Writer.
func (s *Session) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, util.ErrSessionClosed
	}

	// After a prompt the next output starts on a fresh line.
	if s.needNewline {
		s.out.lineBreak()
		s.out.softBreak = false
		s.needNewline = false
	}

	s.out.write(p)
	s.needPrompt = true
	return len(p), nil
}

// WriteString is Write for strings.
func (s *Session) WriteString(text string) (int, error) {
	return s.Write([]byte(text))
}

// Printf formats according to a format specifier and writes the result.
func (s *Session) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s, format, args...)
}

// Flush finishes pending output, writes the prompt if anything happened
// since the last one, and hands everything to the transport.
func (s *Session) Flush() error {
	if s.closed.Load() {
		return util.ErrSessionClosed
	}

	s.out.closeColors()
	s.out.finish()

	if s.needPrompt {
		if s.mode != nil {
			s.mode.Prompt(s)
		} else {
			_, _ = s.WriteString(">")
		}
		s.out.finish()
		s.pending.WriteByte(' ')
		if s.neg.Enabled(Local, protocol.OptEOR) {
			s.pending.Write(protocol.Command(protocol.EOR))
		}
		s.needPrompt = false
		s.needNewline = true
		s.out.curCol = 0
	}

	return s.drain()
}

// drain moves pending output to the transport, compressing it if MCCP is
// active.
func (s *Session) drain() error {
	if s.writeFailed {
		s.pending.Reset()
		s.wire = s.wire[:0]
		return util.ErrSessionClosed
	}

	if s.pending.Len() > 0 {
		if s.compressor != nil {
			z, err := s.compressor.Compress(s.pending.Bytes())
			if err != nil {
				s.pending.Reset()
				s.fail("compress", err)
				return err
			}
			s.wire = append(s.wire, z...)
		} else {
			s.wire = append(s.wire, s.pending.Bytes()...)
		}
		s.pending.Reset()
	}

	if len(s.wire) == 0 {
		return nil
	}

	_, err := s.transport.Write(s.wire)
	s.wire = s.wire[:0]
	if err != nil {
		s.fail("write", err)
		return err
	}
	return nil
}

// fail records a transport failure and tears the session down.
func (s *Session) fail(op string, err error) {
	if s.writeFailed {
		return
	}
	s.writeFailed = true
	s.log.WithError(util.NewConnectionError(s.remote, op, err)).Error("Transport failure")
	_ = s.Close()
}

// CheckTimeout disconnects the session if it has been idle for the
// configured timeout. It reports whether the session was closed.
func (s *Session) CheckTimeout(now time.Time) bool {
	if s.closed.Load() || s.cfg.IdleTimeout <= 0 {
		return false
	}
	if now.Sub(s.lastActivity) < s.cfg.IdleTimeout {
		return false
	}

	_, _ = s.WriteString(MarkAdmin + IdleNotice + MarkNormal + "\n")
	s.log.WithField("idle", now.Sub(s.lastActivity).Round(time.Second)).Info("Idle timeout")
	_ = s.Close()
	return true
}

// LastActivity returns when input was last received.
func (s *Session) LastActivity() time.Time {
	return s.lastActivity
}

// Close tears the session down: pending output is flushed, the compressor
// finalized, negotiation state discarded, the mode shut down and the
// transport closed. Calling Close more than once is a no-op.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.out.closeColors()
	s.out.finish()
	_ = s.drain()

	if s.compressor != nil {
		tail, err := s.compressor.Close()
		if err != nil {
			s.log.WithError(err).Warn("Failed to finalize compression stream")
		} else if len(tail) > 0 && !s.writeFailed {
			_, _ = s.transport.Write(tail)
		}
		s.log.WithFields(compressionFields(s.compressor)).Debug("Compression finished")
		s.compressor = nil
	}

	s.neg.Reset()

	if m := s.mode; m != nil {
		s.mode = nil
		m.Shutdown(s)
	}

	close(s.done)
	err := s.transport.Close()
	s.log.Info("Session closed")
	return err
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Done returns a channel that is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Mode returns the current mode, or nil.
func (s *Session) Mode() Mode {
	return s.mode
}

// SetMode shuts down the current mode and installs m. If m implements
// Initializer and fails, the session is disconnected.
func (s *Session) SetMode(m Mode) error {
	if s.closed.Load() {
		return util.ErrSessionClosed
	}

	if old := s.mode; old != nil {
		s.mode = nil
		old.Shutdown(s)
	}
	s.mode = m

	if init, ok := m.(Initializer); ok {
		if err := init.Initialize(s); err != nil {
			s.mode = nil
			s.log.WithError(err).Warn("Mode initialization failed")
			_ = s.Close()
			return err
		}
	}
	return nil
}

// SetEcho controls whether typed input is visible. Turning it off asks the
// client to stop local echo while the server stays silent, as for
// passwords.
func (s *Session) SetEcho(on bool) {
	s.wantEcho = on
	if on {
		s.pending.Write(s.neg.Disable(Local, protocol.OptEcho))
	} else {
		s.request(Local, protocol.OptEcho)
	}
}

// SetIndent sets the left margin for following output.
func (s *Session) SetIndent(n int) {
	if n < 0 {
		n = 0
	}
	s.out.setIndent(n)
}

// SetColor overrides the colour used for t in this session. An invalid v
// restores the palette default.
func (s *Session) SetColor(t ColorType, v ColorValue) {
	if !t.Valid() {
		return
	}
	if !v.Valid() {
		v = -1
	}
	s.colorOverrides[t] = v
}

// Color returns the colour this session uses for t.
func (s *Session) Color(t ColorType) ColorValue {
	if t.Valid() && s.colorOverrides[t] >= 0 {
		return s.colorOverrides[t]
	}
	return s.palette.Default(t)
}

// ClearScreen clears the client's screen, or scrolls it clear when colour
// codes are off.
func (s *Session) ClearScreen() {
	if s.out.ansi {
		_, _ = s.WriteString("\x1b[2J\x1b[H")
		return
	}
	_, _ = s.WriteString(strings.Repeat("\n", s.height))
}

// DrawBar draws a 12-segment progress bar filled to percent.
func (s *Session) DrawBar(percent int) {
	const segments = 12
	percent = max(0, min(percent, 100))
	parts := segments * percent / 100
	_, _ = s.WriteString("[" + strings.Repeat("=", parts) + strings.Repeat(" ", segments-parts) + "]")
}

// Width returns the current wrap width.
func (s *Session) Width() int {
	return s.out.width
}

// Height returns the current screen height.
func (s *Session) Height() int {
	return s.height
}

// Capabilities returns a snapshot of the client's reported capabilities.
func (s *Session) Capabilities() Capabilities {
	return Capabilities{
		Width:        s.out.width,
		Height:       s.height,
		TerminalType: s.terminalType,
		XTerm:        s.xterm,
		ANSITerm:     s.ansiTerm,
		Color:        s.out.ansi,
		ZMP:          s.neg.Enabled(Local, protocol.OptZMP),
		ZMPColor:     s.out.zmpColor,
		Compressed:   s.compressor != nil,
		EndOfRecord:  s.neg.Enabled(Local, protocol.OptEOR),
		ServerEcho:   s.echoing(),
	}
}

// Environ returns a NEW-ENVIRON variable reported by the client.
func (s *Session) Environ(name string) (string, bool) {
	v, ok := s.environ[name]
	return v, ok
}

// SendZMP sends a ZMP command, bypassing the output formatter. It does
// nothing unless the client agreed to ZMP.
func (s *Session) SendZMP(argv ...string) {
	if s.closed.Load() || !s.neg.Enabled(Local, protocol.OptZMP) {
		return
	}
	s.pending.Write(zmp.Encode(argv...))
}

// SetSupport records a zmp.support or zmp.no-support announcement.
func (s *Session) SetSupport(pkg string, supported bool) {
	s.zmpSupport[pkg] = supported

	switch pkg {
	case "color.define":
		s.out.zmpColor = supported
		if supported {
			for t := ColorType(1); int(t) < NumColorTypes; t++ {
				s.SendZMP("color.define", strconv.Itoa(int(t)), t.Name(), t.RGB())
			}
		}
		s.notifyCapabilities()

	case "net.sourcemud.":
		if supported {
			s.SendZMP("net.sourcemud.name", s.cfg.Name)
		}
	}
}

// ZMPSupported reports whether the client announced support for pkg.
func (s *Session) ZMPSupported(pkg string) bool {
	return s.zmpSupport[pkg]
}

// InjectLine processes line as if the client had typed it.
func (s *Session) InjectLine(line string) {
	s.queued = append(s.queued, line)
	s.processQueued()
}

func (s *Session) request(dir Direction, opt byte) {
	if reply := s.neg.Request(dir, opt); reply != nil {
		s.log.WithFields(logrus.Fields{
			"direction": dir.String(),
			"option":    protocol.OptionName(opt),
		}).Debug("Offering option")
		s.pending.Write(reply)
	}
}

func (s *Session) notifyCapabilities() {
	if l, ok := s.mode.(CapabilityListener); ok {
		l.CapabilitiesChanged(s, s.Capabilities())
	}
}

func (s *Session) setSize(width, height int) {
	s.out.width = width
	s.height = height
}

// echoing reports whether the server echoes typed input.
func (s *Session) echoing() bool {
	return s.wantEcho && (s.neg.Enabled(Local, protocol.OptEcho) || s.forceEcho)
}

var _ zmp.Session = (*Session)(nil)
var _ io.WriteCloser = (*Session)(nil)
