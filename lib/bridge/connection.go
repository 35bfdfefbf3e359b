package bridge

import (
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sourcemud/mud-telnet/lib/session"
	"github.com/sourcemud/mud-telnet/lib/telnet"
	"github.com/sourcemud/mud-telnet/lib/util"
)

// Connection is one client socket and the telnet session running on it.
//
// The session is only touched with mu held: by the connection's reactor
// goroutine, and by Close from anywhere else. Other goroutines hand text to
// Send, which queues it and wakes the reactor instead of taking mu, so two
// sessions broadcasting to each other cannot deadlock.
type Connection struct {
	mu sync.Mutex

	conn    net.Conn
	wire    *transport
	session *telnet.Session
	log     *logrus.Entry

	remoteAddr string
	host       string
	createdAt  time.Time

	mailMu sync.Mutex
	mail   []string
}

// transport is the session's view of the socket. Writes carry a deadline
// so a stalled client cannot hold its reactor forever.
type transport struct {
	conn    net.Conn
	timeout time.Duration
}

func (t *transport) Write(p []byte) (int, error) {
	if t.timeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.timeout)); err != nil {
			return 0, err
		}
	}
	return t.conn.Write(p)
}

func (t *transport) Close() error {
	return t.conn.Close()
}

// NewConnection wraps conn. The session is attached with Attach.
func NewConnection(conn net.Conn, writeTimeout time.Duration, log *logrus.Entry) *Connection {
	return &Connection{
		conn:       conn,
		wire:       &transport{conn: conn, timeout: writeTimeout},
		log:        log,
		remoteAddr: conn.RemoteAddr().String(),
		host:       hostOf(conn.RemoteAddr()),
		createdAt:  time.Now(),
	}
}

// Attach creates the telnet session for this connection.
func (c *Connection) Attach(opts telnet.Options) *telnet.Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts.RemoteAddr = c.remoteAddr
	if opts.Logger == nil {
		opts.Logger = c.log
	}
	c.session = telnet.NewSession(c.wire, opts)
	return c.session
}

// Session returns the attached session.
func (c *Connection) Session() *telnet.Session {
	return c.session
}

// ID returns the session ID.
func (c *Connection) ID() string {
	if c.session == nil {
		return ""
	}
	return c.session.ID()
}

// RemoteAddr returns the client's remote address.
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// Host returns the client's IP address.
func (c *Connection) Host() string {
	return c.host
}

// Age returns how long the connection has been open.
func (c *Connection) Age() time.Duration {
	return time.Since(c.createdAt)
}

// Do runs fn with the session locked and flushes afterwards. It is how
// code outside the reactor (mode installation, tests) touches the session.
func (c *Connection) Do(fn func(s *telnet.Session)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.Closed() {
		return util.ErrSessionClosed
	}
	fn(c.session)
	if c.session.Closed() {
		return util.ErrSessionClosed
	}
	return c.session.Flush()
}

// Send queues text for the session and wakes its reactor. Safe for
// concurrent use.
func (c *Connection) Send(text string) error {
	if c.session == nil || c.session.Closed() {
		return util.ErrSessionClosed
	}

	c.mailMu.Lock()
	c.mail = append(c.mail, text)
	c.mailMu.Unlock()

	// An expired read deadline ends the reactor's blocking read.
	return c.conn.SetReadDeadline(time.Now())
}

func (c *Connection) hasMail() bool {
	c.mailMu.Lock()
	defer c.mailMu.Unlock()
	return len(c.mail) > 0
}

func (c *Connection) takeMail() []string {
	c.mailMu.Lock()
	defer c.mailMu.Unlock()
	mail := c.mail
	c.mail = nil
	return mail
}

// Close tears the session down, which closes the socket.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return c.conn.Close()
	}
	return c.session.Close()
}

// step runs one reactor callback: queued mail, then input, then the idle
// check and the flush. It reports whether the session has ended.
func (c *Connection) step(input []byte, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.session
	if s.Closed() {
		return true
	}

	for _, text := range c.takeMail() {
		_, _ = s.WriteString(text)
	}
	if len(input) > 0 {
		s.Receive(input)
	}
	if s.CheckTimeout(now) || s.Closed() {
		return true
	}
	_ = s.Flush()
	return s.Closed()
}

// serve is the connection's reactor loop. Reads time out every poll so
// idle checks and queued mail run without input. It returns when the
// session ends or the socket fails.
func (c *Connection) serve(poll time.Duration, bufSize int) error {
	buf := make([]byte, bufSize)

	// The initial negotiation offers go out before the first read.
	if c.step(nil, time.Now()) {
		return nil
	}

	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(poll)); err != nil {
			return util.NewConnectionError(c.remoteAddr, "set deadline", err)
		}

		var n int
		var err error
		if !c.hasMail() {
			n, err = c.conn.Read(buf)
		}

		if c.step(buf[:n], time.Now()) {
			return nil
		}
		if err != nil && !util.IsTimeout(err) {
			return util.NewConnectionError(c.remoteAddr, "read", err)
		}
	}
}

var _ session.Member = (*Connection)(nil)
