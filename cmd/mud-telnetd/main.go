// Package main provides the entry point for the MUD telnet server.
// It accepts telnet clients, negotiates options with each of them and runs
// a small talker so the engine can be tried from any telnet or MUD client.
//
// Usage:
//
//	mud-telnetd [flags]
//	mud-telnetd version
//
// Flags:
//
//	--config string         YAML configuration file
//	--listen string         telnet listen address (default ":4000")
//	--idle-timeout duration disconnect idle clients after this long
//	--debug                 enable debug logging
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sourcemud/mud-telnet/lib/bridge"
	"github.com/sourcemud/mud-telnet/lib/session"
	"github.com/sourcemud/mud-telnet/lib/telnet"
)

var (
	// Version is set at build time via ldflags
	Version = "dev"
	// BuildTime is set at build time via ldflags
	BuildTime = "unknown"
	// GitCommit is set at build time via ldflags
	GitCommit = "unknown"
)

// options holds the command-line flags.
type options struct {
	ConfigPath  string
	ListenAddr  string
	IdleTimeout time.Duration
	Debug       bool

	// Set when the listen address or idle timeout came from a flag or
	// the environment and must win over the configuration file.
	listenSet bool
	idleSet   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "mud-telnetd",
		Short:        "Telnet server for text games",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.listenSet = cmd.Flags().Changed("listen")
			opts.idleSet = cmd.Flags().Changed("idle-timeout")
			applyEnv(&opts)
			return run(opts)
		},
	}
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "YAML configuration file")
	cmd.Flags().StringVar(&opts.ListenAddr, "listen", bridge.DefaultListenAddr, "telnet listen address")
	cmd.Flags().DurationVar(&opts.IdleTimeout, "idle-timeout", bridge.DefaultIdleTimeout, "disconnect idle clients after this long (0 disables)")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "enable debug logging")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mud-telnetd %s\n", Version)
			fmt.Fprintf(out, "Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
		},
	}
}

// applyEnv lets MUD_LISTEN and MUD_DEBUG override the flags.
func applyEnv(opts *options) {
	if env := os.Getenv("MUD_LISTEN"); env != "" {
		opts.ListenAddr = env
		opts.listenSet = true
	}
	if os.Getenv("MUD_DEBUG") != "" {
		opts.Debug = true
	}
}

// loadConfig reads the configuration file, if any, and lays explicit flags
// over it.
func loadConfig(opts options) (*bridge.Config, error) {
	cfg := bridge.DefaultConfig()
	if opts.ConfigPath != "" {
		loaded, err := bridge.LoadConfig(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if opts.ConfigPath == "" || opts.listenSet {
		cfg = cfg.WithListenAddr(opts.ListenAddr)
	}
	if opts.ConfigPath == "" || opts.idleSet {
		cfg = cfg.WithIdleTimeout(opts.IdleTimeout)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(debug bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	if debug {
		log.SetLevel(logrus.DebugLevel)
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	return log
}

func run(opts options) error {
	log := newLogger(opts.Debug)

	cfg, err := loadConfig(opts)
	if err != nil {
		log.WithError(err).Error("Invalid configuration")
		return err
	}

	log.WithFields(logrus.Fields{
		"version":     Version,
		"listen":      cfg.ListenAddr,
		"idle":        cfg.Timeouts.Idle,
		"compression": cfg.Telnet.Compression,
		"zmp":         cfg.Telnet.ZMP,
	}).Info("Starting MUD telnet server")

	registry := session.NewRegistry()
	server, err := bridge.NewServer(cfg, registry, logrus.NewEntry(log))
	if err != nil {
		log.WithError(err).Error("Failed to create server")
		return err
	}

	players := newRoster()
	if err := registerCommands(server.ZMP(), players); err != nil {
		log.WithError(err).Error("Failed to register ZMP commands")
		return err
	}
	server.SetModeFactory(func(*telnet.Session) telnet.Mode {
		return newTalker(registry, players)
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case sig := <-sigChan:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case serveErr = <-errChan:
		if serveErr != nil {
			log.WithError(serveErr).Error("Server error")
		}
	}

	log.Info("Shutting down...")

	if err := server.Close(); err != nil {
		log.WithError(err).Warn("Error stopping server")
	}
	if err := registry.Close(); err != nil {
		log.WithError(err).Warn("Error closing sessions")
	}

	log.Info("MUD telnet server stopped")
	return serveErr
}
