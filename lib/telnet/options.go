package telnet

import (
	"github.com/sourcemud/mud-telnet/lib/protocol"
)

// OptionState is the negotiation state of one option in one direction.
type OptionState uint8

const (
	// StateNone means the option has not been negotiated (or was reset).
	StateNone OptionState = iota

	// StateRequested means an offer was sent and no answer has arrived.
	StateRequested

	// StateEnabled means both sides agreed to enable the option.
	StateEnabled

	// StateDeclined means one side refused the option.
	StateDeclined
)

// String returns a human-readable state name.
func (s OptionState) String() string {
	switch s {
	case StateNone:
		return "NONE"
	case StateRequested:
		return "REQUESTED"
	case StateEnabled:
		return "ENABLED"
	case StateDeclined:
		return "DECLINED"
	default:
		return "UNKNOWN"
	}
}

// Direction selects which side performs an option.
// Local options are negotiated with WILL/WONT from us and DO/DONT from the
// peer; remote options the other way round.
type Direction uint8

const (
	Local Direction = iota
	Remote
)

// String returns "local" or "remote".
func (d Direction) String() string {
	if d == Remote {
		return "remote"
	}
	return "local"
}

// DirectionOf returns the direction a received negotiation command refers to.
func DirectionOf(cmd byte) Direction {
	if cmd == protocol.WILL || cmd == protocol.WONT {
		return Remote
	}
	return Local
}

// Change reports what a received negotiation did to an option.
type Change uint8

const (
	Unchanged Change = iota
	Activated
	Deactivated
)

type optionEntry struct {
	state OptionState

	// awaitingAck is set after we disable an option, so the peer's
	// acknowledgement is not answered again.
	awaitingAck bool

	// refused is set once we have sent a refusal for a declined option;
	// further offers of it are not answered.
	refused bool

	// forced marks an option we declined ourselves with Decline. The peer
	// cannot turn it back on.
	forced bool
}

// Negotiator tracks per-option, per-direction negotiation state and produces
// the reply bytes for every negotiation command received. It never offers
// the same option twice without an intervening Disable, and it never
// answers a negotiation that repeats an already-decided state.
type Negotiator struct {
	table     [256][2]optionEntry
	supported [256][2]bool
}

// NewNegotiator creates a Negotiator with no supported options.
func NewNegotiator() *Negotiator {
	return &Negotiator{}
}

// Support marks opt as acceptable in the given direction.
func (n *Negotiator) Support(dir Direction, opt byte, ok bool) {
	n.supported[opt][dir] = ok
}

// Supported reports whether opt is acceptable in the given direction.
func (n *Negotiator) Supported(dir Direction, opt byte) bool {
	return n.supported[opt][dir]
}

// State returns the current state of opt in the given direction.
func (n *Negotiator) State(dir Direction, opt byte) OptionState {
	return n.table[opt][dir].state
}

// Enabled reports whether opt is enabled in the given direction.
func (n *Negotiator) Enabled(dir Direction, opt byte) bool {
	return n.table[opt][dir].state == StateEnabled
}

// Request offers opt (WILL for Local, DO for Remote). Nothing is sent
// unless the option is in StateNone.
func (n *Negotiator) Request(dir Direction, opt byte) []byte {
	e := &n.table[opt][dir]
	if e.state != StateNone {
		return nil
	}
	e.state = StateRequested
	e.awaitingAck = false
	e.refused = false
	return protocol.Negotiation(offer(dir, true), opt)
}

// Disable turns an enabled or requested option off and resets it to
// StateNone so it may be requested again later.
func (n *Negotiator) Disable(dir Direction, opt byte) []byte {
	e := &n.table[opt][dir]
	if e.state != StateEnabled && e.state != StateRequested {
		return nil
	}
	e.state = StateNone
	e.awaitingAck = true
	return protocol.Negotiation(offer(dir, false), opt)
}

// Decline forces opt into StateDeclined. A refusal is sent unless the
// option was already declined.
func (n *Negotiator) Decline(dir Direction, opt byte) []byte {
	e := &n.table[opt][dir]
	if e.state == StateDeclined {
		return nil
	}
	e.state = StateDeclined
	e.awaitingAck = false
	e.refused = true
	e.forced = true
	return protocol.Negotiation(offer(dir, false), opt)
}

// Receive applies a peer negotiation command (WILL, WONT, DO or DONT) and
// returns the bytes to send back, if any, together with the resulting
// change so the caller can run activation side effects.
func (n *Negotiator) Receive(cmd, opt byte) ([]byte, Change) {
	dir := DirectionOf(cmd)
	e := &n.table[opt][dir]

	switch cmd {
	case protocol.DO, protocol.WILL:
		switch e.state {
		case StateRequested:
			e.state = StateEnabled
			return nil, Activated
		case StateEnabled:
			return nil, Unchanged
		case StateDeclined:
			// The peer changed its mind: accept if we can, otherwise
			// restate the refusal once.
			if e.refused && (e.forced || !n.supported[opt][dir]) {
				return nil, Unchanged
			}
		}
		e.awaitingAck = false
		if n.supported[opt][dir] && !e.forced {
			e.state = StateEnabled
			e.refused = false
			return protocol.Negotiation(offer(dir, true), opt), Activated
		}
		e.state = StateDeclined
		e.refused = true
		return protocol.Negotiation(offer(dir, false), opt), Unchanged

	case protocol.DONT, protocol.WONT:
		switch e.state {
		case StateRequested:
			e.state = StateDeclined
			return nil, Unchanged
		case StateEnabled:
			e.state = StateDeclined
			return protocol.Negotiation(offer(dir, false), opt), Deactivated
		case StateDeclined:
			return nil, Unchanged
		}
		if e.awaitingAck {
			e.awaitingAck = false
			return nil, Unchanged
		}
		e.state = StateDeclined
		return protocol.Negotiation(offer(dir, false), opt), Unchanged
	}

	return nil, Unchanged
}

// Reset discards all negotiation state. Supported sets are kept.
func (n *Negotiator) Reset() {
	n.table = [256][2]optionEntry{}
}

// offer returns the command we send to enable (yes) or refuse an option.
func offer(dir Direction, yes bool) byte {
	switch {
	case dir == Local && yes:
		return protocol.WILL
	case dir == Local:
		return protocol.WONT
	case yes:
		return protocol.DO
	default:
		return protocol.DONT
	}
}
