package protocol

import "bytes"

// Negotiation returns the three byte sequence IAC <cmd> <opt>.
func Negotiation(cmd, opt byte) []byte {
	return []byte{IAC, cmd, opt}
}

// Command returns the two byte sequence IAC <cmd>.
func Command(cmd byte) []byte {
	return []byte{IAC, cmd}
}

// Subnegotiation frames payload as IAC SB <opt> payload IAC SE.
// IAC bytes inside payload are doubled.
func Subnegotiation(opt byte, payload []byte) []byte {
	buf := make([]byte, 0, len(payload)+5)
	buf = append(buf, IAC, SB, opt)
	buf = AppendEscaped(buf, payload)
	return append(buf, IAC, SE)
}

// EscapeIAC doubles IAC bytes for outbound data.
// Example: [255, 1, 6, 2] -> [255, 255, 1, 6, 2]
func EscapeIAC(data []byte) []byte {
	return AppendEscaped(make([]byte, 0, len(data)), data)
}

// AppendEscaped appends data to dst with every IAC byte doubled.
func AppendEscaped(dst, data []byte) []byte {
	for len(data) > 0 {
		i := bytes.IndexByte(data, IAC)
		if i < 0 {
			return append(dst, data...)
		}
		dst = append(dst, data[:i+1]...)
		dst = append(dst, IAC)
		data = data[i+1:]
	}
	return dst
}

// UnescapeIAC collapses doubled IAC bytes.
// Example: [255, 255, 1, 6, 2] -> [255, 1, 6, 2]
// A lone IAC is kept as-is.
func UnescapeIAC(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		out = append(out, data[i])
		if data[i] == IAC && i+1 < len(data) && data[i+1] == IAC {
			i++
		}
	}
	return out
}
