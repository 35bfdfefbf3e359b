// Package protocol implements telnet command and option codes and the
// byte-level framing shared by the negotiation engine and the ZMP codec.
// See RFC 854/855 for the base protocol, RFC 885 (EOR), RFC 1073 (NAWS),
// RFC 1091 (TTYPE), RFC 1572 (NEW-ENVIRON), plus the MCCP2 and ZMP
// extensions used by MUD clients.
package protocol

import "strconv"

// Telnet commands per RFC 854.
const (
	IAC  byte = 255 // Interpret As Command
	DONT byte = 254
	DO   byte = 253
	WONT byte = 252
	WILL byte = 251
	SB   byte = 250 // Subnegotiation Begin
	GA   byte = 249 // Go Ahead
	EL   byte = 248 // Erase Line
	EC   byte = 247 // Erase Character
	AYT  byte = 246 // Are You There
	NOP  byte = 241
	SE   byte = 240 // Subnegotiation End
	EOR  byte = 239 // End Of Record
)

// Telnet options negotiated by the engine.
const (
	OptEcho       byte = 1
	OptSGA        byte = 3 // Suppress Go Ahead
	OptTTYPE      byte = 24
	OptEOR        byte = 25
	OptNAWS       byte = 31
	OptLFLOW      byte = 33
	OptNewEnviron byte = 39
	OptMCCP2      byte = 86
	OptZMP        byte = 93
)

// Subnegotiation verbs for TTYPE and NEW-ENVIRON.
const (
	TelQualIS   byte = 0
	TelQualSEND byte = 1
	TelQualINFO byte = 2
)

// NEW-ENVIRON type codes per RFC 1572.
const (
	EnvVar     byte = 0
	EnvValue   byte = 1
	EnvEsc     byte = 2
	EnvUserVar byte = 3
)

// Default listen port. 4000 is the customary MUD port.
const DefaultPort = 4000

var commandNames = map[byte]string{
	IAC:  "IAC",
	DONT: "DONT",
	DO:   "DO",
	WONT: "WONT",
	WILL: "WILL",
	SB:   "SB",
	GA:   "GA",
	EL:   "EL",
	EC:   "EC",
	AYT:  "AYT",
	NOP:  "NOP",
	SE:   "SE",
	EOR:  "EOR",
}

var optionNames = map[byte]string{
	OptEcho:       "ECHO",
	OptSGA:        "SGA",
	OptTTYPE:      "TTYPE",
	OptEOR:        "EOR",
	OptNAWS:       "NAWS",
	OptLFLOW:      "LFLOW",
	OptNewEnviron: "NEW-ENVIRON",
	OptMCCP2:      "MCCP2",
	OptZMP:        "ZMP",
}

// CommandName returns a printable name for a telnet command byte.
func CommandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return "CMD" + strconv.Itoa(int(cmd))
}

// OptionName returns a printable name for a telnet option byte.
func OptionName(opt byte) string {
	if name, ok := optionNames[opt]; ok {
		return name
	}
	return "OPT" + strconv.Itoa(int(opt))
}

// IsNegotiation returns true for the four option negotiation commands.
func IsNegotiation(cmd byte) bool {
	return cmd == WILL || cmd == WONT || cmd == DO || cmd == DONT
}
