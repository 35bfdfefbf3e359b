// Package embedding runs the telnet server inside a host application.
// The host supplies the game through a mode factory and extra ZMP
// commands, and drives the server through the Lifecycle interface.
package embedding

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/sourcemud/mud-telnet/lib/bridge"
	"github.com/sourcemud/mud-telnet/lib/session"
)

// ErrAlreadyStarted is returned by Start on a server that was started
// before. A stopped server cannot be restarted.
var ErrAlreadyStarted = errors.New("server already started")

// Lifecycle defines the interface for controlling an embedded server.
type Lifecycle interface {
	// Start begins accepting clients. Non-blocking.
	Start(ctx context.Context) error

	// Stop disconnects every client and stops accepting new ones.
	// The context bounds how long Stop waits.
	Stop(ctx context.Context) error

	// Wait blocks until the server has stopped and returns the error
	// that stopped it, if any.
	Wait() error

	// Running reports whether the server is accepting clients.
	Running() bool
}

// Server is an embeddable telnet server.
type Server struct {
	opts     *options
	log      *logrus.Entry
	registry session.Registry
	server   *bridge.Server

	mu       sync.Mutex
	started  bool
	running  atomic.Bool
	done     chan struct{}
	err      error
	cancelFn context.CancelFunc
}

var _ Lifecycle = (*Server)(nil)

// New creates a server from the given options applied over the default
// configuration.
func New(opts ...Option) (*Server, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := o.config.Validate(); err != nil {
		return nil, err
	}

	log := o.logger
	if log == nil {
		l := logrus.New()
		if o.debug {
			l.SetLevel(logrus.DebugLevel)
		}
		log = logrus.NewEntry(l)
	}

	registry := o.registry
	if registry == nil {
		registry = session.NewRegistry()
	}

	server, err := bridge.NewServer(o.config, registry, log)
	if err != nil {
		return nil, err
	}
	for _, c := range o.commands {
		if err := server.ZMP().Register(c.name, c.handler); err != nil {
			return nil, err
		}
	}
	server.SetModeFactory(o.modes)

	return &Server{
		opts:     o,
		log:      log,
		registry: registry,
		server:   server,
		done:     make(chan struct{}),
	}, nil
}

// Start opens the listener, if one was not supplied, and serves clients
// in the background. Cancelling ctx stops the server.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	ln := s.opts.listener
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", s.opts.config.ListenAddr)
		if err != nil {
			return err
		}
	}
	s.started = true

	ctx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel

	s.running.Store(true)
	go func() {
		err := s.server.Serve(ln)

		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		s.running.Store(false)
		close(s.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop(context.Background())
		case <-s.done:
		}
	}()

	s.log.WithField("addr", ln.Addr().String()).Info("Embedded telnet server started")
	return nil
}

// Stop shuts the server down. Sessions are closed before Stop returns
// unless ctx expires first.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || !s.running.Load() {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancelFn
	s.mu.Unlock()

	s.log.Info("Stopping embedded telnet server...")
	if cancel != nil {
		cancel()
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		if err := s.server.Close(); err != nil {
			s.log.WithError(err).Warn("Error closing server")
		}
		if err := s.registry.Close(); err != nil {
			s.log.WithError(err).Warn("Error closing sessions")
		}
	}()

	select {
	case <-stopped:
		s.log.Info("Embedded telnet server stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the server has stopped.
func (s *Server) Wait() error {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Running returns true if the server is accepting clients.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Server returns the underlying bridge.Server.
func (s *Server) Server() *bridge.Server {
	return s.server
}

// Registry returns the session registry.
func (s *Server) Registry() session.Registry {
	return s.registry
}

// Addr returns the address clients connect to, or "" before Start.
func (s *Server) Addr() string {
	return s.server.Addr()
}
