package protocol

import (
	"bytes"
	"testing"
)

func TestConstants(t *testing.T) {
	// Wire values are fixed by the RFCs and by MUD client convention.
	tests := []struct {
		name string
		got  byte
		want byte
	}{
		{"IAC", IAC, 255},
		{"DONT", DONT, 254},
		{"DO", DO, 253},
		{"WONT", WONT, 252},
		{"WILL", WILL, 251},
		{"SB", SB, 250},
		{"SE", SE, 240},
		{"EOR", EOR, 239},
		{"OptEcho", OptEcho, 1},
		{"OptTTYPE", OptTTYPE, 24},
		{"OptEOR", OptEOR, 25},
		{"OptNAWS", OptNAWS, 31},
		{"OptNewEnviron", OptNewEnviron, 39},
		{"OptMCCP2", OptMCCP2, 86},
		{"OptZMP", OptZMP, 93},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestNames(t *testing.T) {
	if got := CommandName(WILL); got != "WILL" {
		t.Errorf("CommandName(WILL) = %q, want WILL", got)
	}
	if got := CommandName(200); got != "CMD200" {
		t.Errorf("CommandName(200) = %q, want CMD200", got)
	}
	if got := OptionName(OptZMP); got != "ZMP" {
		t.Errorf("OptionName(ZMP) = %q, want ZMP", got)
	}
	if got := OptionName(7); got != "OPT7" {
		t.Errorf("OptionName(7) = %q, want OPT7", got)
	}
}

func TestIsNegotiation(t *testing.T) {
	for _, cmd := range []byte{WILL, WONT, DO, DONT} {
		if !IsNegotiation(cmd) {
			t.Errorf("IsNegotiation(%s) = false, want true", CommandName(cmd))
		}
	}
	for _, cmd := range []byte{SB, SE, IAC, NOP} {
		if IsNegotiation(cmd) {
			t.Errorf("IsNegotiation(%s) = true, want false", CommandName(cmd))
		}
	}
}

func TestDefaultPort(t *testing.T) {
	if DefaultPort != 4000 {
		t.Errorf("DefaultPort = %d, want 4000", DefaultPort)
	}
}

func TestNegotiationBytes(t *testing.T) {
	if got := Negotiation(WILL, OptEOR); !bytes.Equal(got, []byte{255, 251, 25}) {
		t.Errorf("Negotiation(WILL, EOR) = %v", got)
	}
	if got := Command(EOR); !bytes.Equal(got, []byte{255, 239}) {
		t.Errorf("Command(EOR) = %v", got)
	}
}
