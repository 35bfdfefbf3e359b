package telnet

import (
	"time"

	"github.com/sourcemud/mud-telnet/lib/mccp"
)

// Default session settings.
const (
	DefaultWidth             = 70
	DefaultHeight            = 24
	DefaultChunkSize         = 2048
	DefaultMaxLineLength     = 1024
	DefaultMaxSubnegotiation = 1024
	DefaultTypeAhead         = 10
	DefaultName              = "Source MUD"
	DefaultVersion           = "0.1.0"
	DefaultAbout             = "Go telnet engine for text games"

	// MinScreenWidth and MinScreenHeight bound the !screen command.
	MinScreenWidth  = 20
	MinScreenHeight = 10
)

// Config holds the per-session settings. A zero field takes its default.
type Config struct {
	// Width and Height are the screen size used until the client reports
	// its own (and after it stops reporting).
	Width  int
	Height int

	// IdleTimeout disconnects a session with no input for this long.
	// Zero disables the check.
	IdleTimeout time.Duration

	// Color enables ANSI colour output before the client says otherwise.
	Color bool

	// Compression offers MCCP2. CompressionLevel is the zlib level;
	// zero means the library default.
	Compression      bool
	CompressionLevel int

	// ZMP offers the ZMP application channel.
	ZMP bool

	// Name, Version and About identify the server in zmp.ident,
	// net.sourcemud.name and the xterm title.
	Name    string
	Version string
	About   string

	// ChunkSize bounds the output word buffer.
	ChunkSize int

	// MaxLineLength bounds one input line; longer lines are truncated.
	MaxLineLength int

	// MaxSubnegotiation bounds one subnegotiation block.
	MaxSubnegotiation int

	// TypeAhead bounds how many complete lines one read may queue.
	TypeAhead int

	// Now is the session clock. Nil means time.Now.
	Now func() time.Time
}

// DefaultConfig returns a Config with every feature offered.
func DefaultConfig() Config {
	return Config{
		Width:             DefaultWidth,
		Height:            DefaultHeight,
		Color:             true,
		Compression:       true,
		CompressionLevel:  mccp.DefaultLevel,
		ZMP:               true,
		Name:              DefaultName,
		Version:           DefaultVersion,
		About:             DefaultAbout,
		ChunkSize:         DefaultChunkSize,
		MaxLineLength:     DefaultMaxLineLength,
		MaxSubnegotiation: DefaultMaxSubnegotiation,
		TypeAhead:         DefaultTypeAhead,
	}
}

// withDefaults fills zero fields.
func (c Config) withDefaults() Config {
	if c.Width <= 0 {
		c.Width = DefaultWidth
	}
	if c.Height <= 0 {
		c.Height = DefaultHeight
	}
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.About == "" {
		c.About = DefaultAbout
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.MaxLineLength <= 0 {
		c.MaxLineLength = DefaultMaxLineLength
	}
	if c.MaxSubnegotiation <= 0 {
		c.MaxSubnegotiation = DefaultMaxSubnegotiation
	}
	if c.TypeAhead <= 0 {
		c.TypeAhead = DefaultTypeAhead
	}
	if c.CompressionLevel == 0 {
		c.CompressionLevel = mccp.DefaultLevel
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}
