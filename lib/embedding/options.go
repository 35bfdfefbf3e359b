package embedding

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/sourcemud/mud-telnet/lib/bridge"
	"github.com/sourcemud/mud-telnet/lib/session"
	"github.com/sourcemud/mud-telnet/lib/zmp"
)

// Option configures a Server.
type Option func(*options)

type command struct {
	name    string
	handler zmp.Handler
}

type options struct {
	config   *bridge.Config
	listener net.Listener
	logger   *logrus.Entry
	registry session.Registry
	modes    bridge.ModeFactory
	commands []command
	debug    bool
}

func defaultOptions() *options {
	return &options{config: bridge.DefaultConfig()}
}

// WithConfig replaces the server configuration. Options applied after it
// still take effect.
func WithConfig(cfg *bridge.Config) Option {
	return func(o *options) {
		if cfg != nil {
			o.config = cfg
		}
	}
}

// WithListenAddr sets the address to listen on.
func WithListenAddr(addr string) Option {
	return func(o *options) {
		o.config = o.config.WithListenAddr(addr)
	}
}

// WithListener serves on an existing listener instead of opening one.
func WithListener(ln net.Listener) Option {
	return func(o *options) {
		o.listener = ln
		if ln != nil {
			o.config = o.config.WithListenAddr(ln.Addr().String())
		}
	}
}

// WithLogger sets the log entry the server and its sessions log through.
func WithLogger(log *logrus.Entry) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithRegistry shares a session registry with the host application.
func WithRegistry(r session.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithModeFactory sets the first mode of every new session.
func WithModeFactory(f bridge.ModeFactory) Option {
	return func(o *options) {
		o.modes = f
	}
}

// WithZMPCommand registers an extra ZMP command or package.
func WithZMPCommand(name string, h zmp.Handler) Option {
	return func(o *options) {
		o.commands = append(o.commands, command{name: name, handler: h})
	}
}

// WithDebug enables debug logging on the default logger.
func WithDebug(debug bool) Option {
	return func(o *options) {
		o.debug = debug
	}
}
