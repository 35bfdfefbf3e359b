package bridge

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sourcemud/mud-telnet/lib/session"
	"github.com/sourcemud/mud-telnet/lib/telnet"
	"github.com/sourcemud/mud-telnet/lib/util"
	"github.com/sourcemud/mud-telnet/lib/zmp"
)

// ModeFactory returns the first mode for a new session, or nil to leave
// the session in telnet-command mode.
type ModeFactory func(s *telnet.Session) telnet.Mode

const (
	deniedNotice = "Connections from your address are not accepted.\r\n"
	busyNotice   = "Too many connections, please try again later.\r\n"
)

// Server is the telnet server that accepts client connections and runs
// one session per client.
type Server struct {
	config   *Config
	log      *logrus.Entry
	registry session.Registry
	zmp      *zmp.Registry
	palette  *telnet.Palette
	filter   *hostFilter
	limiter  *hostLimiter
	newMode  ModeFactory

	mu          sync.Mutex
	listener    net.Listener
	connections map[*Connection]struct{}
	closed      atomic.Bool
	wg          sync.WaitGroup

	// done is closed when the server shuts down.
	done chan struct{}
}

// NewServer creates a server with the given configuration. The ZMP
// registry starts with the built-in commands; more may be added through
// ZMP() until Serve seals it.
func NewServer(config *Config, registry session.Registry, log *logrus.Entry) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	palette, err := config.Palette()
	if err != nil {
		return nil, err
	}
	filter, err := newHostFilter(config.Deny)
	if err != nil {
		return nil, err
	}

	commands := zmp.NewRegistry()
	if err := zmp.RegisterBuiltins(commands, nil); err != nil {
		return nil, err
	}

	return &Server{
		config:      config,
		log:         log,
		registry:    registry,
		zmp:         commands,
		palette:     palette,
		filter:      filter,
		limiter:     newHostLimiter(config.Limits.MaxConnections, config.Limits.MaxPerHost),
		connections: make(map[*Connection]struct{}),
		done:        make(chan struct{}),
	}, nil
}

// SetModeFactory sets how new sessions get their first mode.
func (s *Server) SetModeFactory(f ModeFactory) {
	s.newMode = f
}

// ZMP returns the command registry for handler registration.
func (s *Server) ZMP() *zmp.Registry {
	return s.zmp
}

// Registry returns the session registry.
func (s *Server) Registry() session.Registry {
	return s.registry
}

// Config returns the server configuration.
func (s *Server) Config() *Config {
	return s.config
}

// ListenAndServe starts listening on the configured address and serves clients.
// This method blocks until the server is closed.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Serve accepts connections on the listener and handles them.
// This method blocks until the server is closed.
func (s *Server) Serve(listener net.Listener) error {
	s.zmp.Seal()

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return listener.Close()
	}
	s.listener = listener
	s.mu.Unlock()

	s.log.WithField("addr", listener.Addr().String()).Info("Listening for telnet connections")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			return err
		}

		// Close waits on wg, so no reactor may start once it has begun.
		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		s.wg.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// admit applies the deny list and connection limits. The caller must
// release the host slot when admit returns nil.
func (s *Server) admit(conn net.Conn) (string, error) {
	host := hostOf(conn.RemoteAddr())
	log := s.log.WithField("remote", conn.RemoteAddr().String())

	if s.filter.denied(host) {
		log.WithError(util.ErrHostDenied).Info("Refusing connection")
		s.refuse(conn, deniedNotice)
		return "", util.ErrHostDenied
	}
	if err := s.limiter.acquire(host); err != nil {
		log.WithError(err).Warn("Refusing connection")
		s.refuse(conn, busyNotice)
		return "", err
	}
	return host, nil
}

func (s *Server) refuse(conn net.Conn, notice string) {
	_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
	_, _ = conn.Write([]byte(notice))
	_ = conn.Close()
}

// handleConnection runs one client from accept to disconnect.
func (s *Server) handleConnection(conn net.Conn) {
	host, err := s.admit(conn)
	if err != nil {
		return
	}
	defer s.limiter.release(host)

	c := NewConnection(conn, s.config.Timeouts.Write, s.log)
	sess := c.Attach(telnet.Options{
		Config:   s.config.Session(),
		Palette:  s.palette,
		Registry: s.zmp,
	})
	log := sess.Logger()

	if !s.track(c) {
		_ = c.Close()
		return
	}
	defer s.untrack(c)

	if err := s.registry.Register(c); err != nil {
		log.WithError(err).Error("Failed to register session")
		_ = c.Close()
		return
	}
	defer func() { _ = s.registry.Unregister(c.ID()) }()

	log.Info("Client connected")

	if s.newMode != nil {
		err := c.Do(func(ts *telnet.Session) {
			if m := s.newMode(ts); m != nil {
				_ = ts.SetMode(m)
			}
		})
		if err != nil {
			log.WithError(err).Info("Session ended during setup")
			return
		}
	}

	if err := c.serve(s.config.Timeouts.Poll, s.config.Limits.ReadBufferSize); err != nil && !errors.Is(err, net.ErrClosed) {
		if util.IsFatal(err) {
			log.WithError(err).Debug("Connection lost")
		} else {
			log.WithError(err).Warn("Connection failed")
		}
	}
	_ = c.Close()

	log.WithField("duration", c.Age().Round(time.Second)).Info("Client disconnected")
}

func (s *Server) track(c *Connection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.connections[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, c)
}

// Close gracefully shuts down the server: the listener stops, every
// session is torn down and Close waits for the reactors to exit.
func (s *Server) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	close(s.done)

	s.mu.Lock()
	listener := s.listener
	connections := make([]*Connection, 0, len(s.connections))
	for c := range s.connections {
		connections = append(connections, c)
	}
	s.mu.Unlock()

	if listener != nil {
		_ = listener.Close()
	}
	for _, c := range connections {
		_ = c.Close()
	}

	s.wg.Wait()
	return nil
}

// ConnectionCount returns the number of active connections.
func (s *Server) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.connections)
}

// Addr returns the listener address, or empty string if not listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Done returns a channel that is closed when the server shuts down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}
