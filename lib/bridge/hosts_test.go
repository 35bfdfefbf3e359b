package bridge

import (
	"net"
	"testing"

	"github.com/sourcemud/mud-telnet/lib/util"
)

func TestHostFilter(t *testing.T) {
	f, err := newHostFilter([]string{"10.0.0.0/8", "2001:db8::/32"})
	if err != nil {
		t.Fatalf("newHostFilter() error = %v", err)
	}

	tests := []struct {
		host string
		want bool
	}{
		{"10.1.2.3", true},
		{"11.0.0.1", false},
		{"2001:db8::1", true},
		{"::1", false},
		{"not-an-ip", false},
	}
	for _, tt := range tests {
		if got := f.denied(tt.host); got != tt.want {
			t.Errorf("denied(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}

	if _, err := newHostFilter([]string{"nonsense"}); err == nil {
		t.Error("newHostFilter(nonsense) error = nil")
	}
}

func TestHostLimiter(t *testing.T) {
	l := newHostLimiter(3, 2)

	if err := l.acquire("a"); err != nil {
		t.Fatalf("acquire(a) = %v", err)
	}
	if err := l.acquire("a"); err != nil {
		t.Fatalf("second acquire(a) = %v", err)
	}
	if err := l.acquire("a"); err != util.ErrTooManyConnections {
		t.Errorf("third acquire(a) = %v, want ErrTooManyConnections", err)
	}
	if err := l.acquire("b"); err != nil {
		t.Fatalf("acquire(b) = %v", err)
	}
	if err := l.acquire("c"); err != util.ErrTooManyConnections {
		t.Errorf("acquire(c) over total = %v, want ErrTooManyConnections", err)
	}

	l.release("a")
	if got := l.count("a"); got != 1 {
		t.Errorf("count(a) = %d, want 1", got)
	}
	if err := l.acquire("c"); err != nil {
		t.Errorf("acquire(c) after release = %v", err)
	}

	// Releasing an unknown host does not free a slot.
	l.release("zzz")
	if err := l.acquire("d"); err != util.ErrTooManyConnections {
		t.Errorf("acquire(d) = %v, want ErrTooManyConnections", err)
	}
}

func TestHostLimiter_Unlimited(t *testing.T) {
	l := newHostLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if err := l.acquire("a"); err != nil {
			t.Fatalf("acquire #%d = %v", i, err)
		}
	}
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		addr net.Addr
		want string
	}{
		{&net.TCPAddr{IP: net.ParseIP("192.0.2.7"), Port: 4000}, "192.0.2.7"},
		{&net.TCPAddr{IP: net.ParseIP("2001:db8::7"), Port: 4000}, "2001:db8::7"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := hostOf(tt.addr); got != tt.want {
			t.Errorf("hostOf(%v) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}
