// Package zmp implements the Zenith MUD Protocol: a NUL-delimited command
// channel tunnelled inside telnet subnegotiation blocks for option 93.
//
// A block payload is one or more NUL-terminated strings; the first is the
// command name and the rest are its arguments:
//
//	IAC SB 93 "zmp.ping" NUL IAC SE
//	IAC SB 93 "zmp.check" NUL "color.define" NUL IAC SE
package zmp

import (
	"bytes"
	"strings"

	"github.com/sourcemud/mud-telnet/lib/protocol"
	"github.com/sourcemud/mud-telnet/lib/util"
)

// MaxArgs bounds the number of strings decoded from one block, command
// name included. Extra arguments are ignored.
const MaxArgs = 20

// Validate checks the framing rules for a block payload: at least two
// bytes, a printable first byte, and a trailing NUL.
func Validate(payload []byte) error {
	if len(payload) < 2 {
		return util.NewProtocolError("ZMP", "block shorter than 2 bytes", util.ErrMalformedBlock)
	}
	if !isPrint(payload[0]) {
		return util.NewProtocolError("ZMP", "command does not start with a printable byte", util.ErrMalformedBlock)
	}
	if payload[len(payload)-1] != 0 {
		return util.NewProtocolError("ZMP", "block is not NUL-terminated", util.ErrMalformedBlock)
	}
	return nil
}

// Decode splits an unstuffed block payload into argv. argv[0] is the
// command name. Invalid blocks return an error wrapping util.ErrMalformedBlock.
func Decode(payload []byte) ([]string, error) {
	if err := Validate(payload); err != nil {
		return nil, err
	}

	body := payload[:len(payload)-1]
	argv := make([]string, 0, 4)
	for len(argv) < MaxArgs {
		i := bytes.IndexByte(body, 0)
		if i < 0 {
			argv = append(argv, string(body))
			break
		}
		argv = append(argv, string(body[:i]))
		body = body[i+1:]
	}
	return argv, nil
}

// EncodePayload builds the unstuffed block payload for argv.
func EncodePayload(argv ...string) []byte {
	size := 0
	for _, a := range argv {
		size += len(a) + 1
	}
	buf := make([]byte, 0, size)
	for _, a := range argv {
		// NUL cannot be carried inside an argument.
		a = strings.ReplaceAll(a, "\x00", "")
		buf = append(buf, a...)
		buf = append(buf, 0)
	}
	return buf
}

// Encode builds the full IAC SB ZMP ... IAC SE frame for argv, with IAC
// bytes doubled. Returns nil when argv is empty.
func Encode(argv ...string) []byte {
	if len(argv) == 0 {
		return nil
	}
	return protocol.Subnegotiation(protocol.OptZMP, EncodePayload(argv...))
}

func isPrint(b byte) bool {
	return b >= 0x20 && b < 0x7f
}
