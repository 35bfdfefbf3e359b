package bridge

import (
	"net"
	"sync"

	"github.com/sourcemud/mud-telnet/lib/util"
)

// hostFilter refuses addresses inside any deny block.
type hostFilter struct {
	deny []*net.IPNet
}

func newHostFilter(cidrs []string) (*hostFilter, error) {
	f := &hostFilter{}
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, &ConfigError{Field: "deny", Message: "invalid CIDR " + cidr}
		}
		f.deny = append(f.deny, block)
	}
	return f, nil
}

func (f *hostFilter) denied(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, block := range f.deny {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// hostLimiter counts open connections, in total and per host.
// Zero limits are unlimited.
type hostLimiter struct {
	mu      sync.Mutex
	total   int
	perHost map[string]int

	maxTotal int
	maxHost  int
}

func newHostLimiter(maxTotal, maxHost int) *hostLimiter {
	return &hostLimiter{
		perHost:  make(map[string]int),
		maxTotal: maxTotal,
		maxHost:  maxHost,
	}
}

// acquire reserves a slot for host or returns ErrTooManyConnections.
func (l *hostLimiter) acquire(host string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.maxTotal > 0 && l.total >= l.maxTotal {
		return util.ErrTooManyConnections
	}
	if l.maxHost > 0 && l.perHost[host] >= l.maxHost {
		return util.ErrTooManyConnections
	}
	l.total++
	l.perHost[host]++
	return nil
}

func (l *hostLimiter) release(host string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.perHost[host] == 0 {
		return
	}
	l.total--
	l.perHost[host]--
	if l.perHost[host] == 0 {
		delete(l.perHost, host)
	}
}

func (l *hostLimiter) count(host string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.perHost[host]
}

// hostOf returns the IP part of a remote address.
func hostOf(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
