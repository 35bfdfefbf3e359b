package telnet

// Mode decides what a completed input line means. A session holds exactly
// one mode at a time; SetMode swaps it.
type Mode interface {
	// Process handles one completed input line, without its newline.
	Process(s *Session, line string)

	// Prompt writes the prompt shown after each batch of output.
	Prompt(s *Session)

	// Shutdown is called when the mode is replaced or the session ends.
	Shutdown(s *Session)
}

// Initializer is implemented by modes that need setup when installed.
// An error disconnects the session.
type Initializer interface {
	Initialize(s *Session) error
}

// CapabilityListener is implemented by modes that want to know when the
// client's reported capabilities change.
type CapabilityListener interface {
	CapabilitiesChanged(s *Session, caps Capabilities)
}

// Capabilities is a snapshot of what the client has told us about itself.
type Capabilities struct {
	Width        int
	Height       int
	TerminalType string
	XTerm        bool
	ANSITerm     bool
	Color        bool
	ZMP          bool
	ZMPColor     bool
	Compressed   bool
	EndOfRecord  bool
	ServerEcho   bool
}
