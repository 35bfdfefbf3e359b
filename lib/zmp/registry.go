package zmp

import (
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sourcemud/mud-telnet/lib/util"
)

// PackageSeparator ends a package name. A command registered with a
// trailing separator matches every command name with that prefix.
const PackageSeparator = "."

// DefaultCacheSize is the number of lookup results kept by a registry.
const DefaultCacheSize = 256

// Session is what a command handler may do to the connection that sent it.
type Session interface {
	// SendZMP sends a command back to the peer.
	SendZMP(argv ...string)

	// SetSupport records the peer's support (or lack of it) for a package
	// or command, toggling local policy such as colour definitions.
	SetSupport(pkg string, supported bool)

	// InjectLine processes line as if the peer had typed it.
	InjectLine(line string)
}

// Handler processes one decoded ZMP command. argv[0] is the command name.
type Handler interface {
	Handle(s Session, argv []string)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(s Session, argv []string)

// Handle calls f(s, argv).
func (f HandlerFunc) Handle(s Session, argv []string) {
	f(s, argv)
}

// Command is a registered (name, handler) pair.
type Command struct {
	Name    string
	Handler Handler

	// Package is true when Name ends in PackageSeparator.
	Package bool
}

// Registry maps ZMP command names to handlers.
// It is populated once at startup, sealed, and then shared read-only by
// every session. Lookups are safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	exact    map[string]*Command
	packages []*Command // sorted longest name first
	sealed   bool

	// cache remembers resolved names, including package fallbacks and
	// misses, so repeated names skip the prefix scan. Names come from the
	// client, so the set is bounded.
	cache *lru.Cache[string, *Command]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	cache, _ := lru.New[string, *Command](DefaultCacheSize)
	return &Registry{
		exact: make(map[string]*Command),
		cache: cache,
	}
}

// Register adds a command. Names are case-sensitive. A name ending in
// PackageSeparator registers a package (prefix) match.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" || h == nil {
		return util.ErrInvalidCommand
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return util.ErrRegistrySealed
	}

	cmd := &Command{
		Name:    name,
		Handler: h,
		Package: strings.HasSuffix(name, PackageSeparator),
	}

	if cmd.Package {
		for _, p := range r.packages {
			if p.Name == name {
				return util.ErrDuplicateCommand
			}
		}
		r.packages = append(r.packages, cmd)
		sort.SliceStable(r.packages, func(i, j int) bool {
			return len(r.packages[i].Name) > len(r.packages[j].Name)
		})
	} else {
		if _, exists := r.exact[name]; exists {
			return util.ErrDuplicateCommand
		}
		r.exact[name] = cmd
	}

	r.cache.Purge()
	return nil
}

// RegisterFunc registers a plain function as a handler.
func (r *Registry) RegisterFunc(name string, f func(s Session, argv []string)) error {
	if f == nil {
		return util.ErrInvalidCommand
	}
	return r.Register(name, HandlerFunc(f))
}

// Seal freezes the registry. Further Register calls fail with
// util.ErrRegistrySealed.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup finds the handler for a command name. An exact entry wins; if
// none exists the longest matching package entry is returned. Returns nil
// when nothing matches.
func (r *Registry) Lookup(name string) *Command {
	if cmd, ok := r.cache.Get(name); ok {
		return cmd
	}

	r.mu.RLock()
	cmd := r.lookupLocked(name)
	r.mu.RUnlock()

	r.cache.Add(name, cmd)
	return cmd
}

func (r *Registry) lookupLocked(name string) *Command {
	if cmd, ok := r.exact[name]; ok {
		return cmd
	}
	for _, p := range r.packages {
		if strings.HasPrefix(name, p.Name) {
			return p
		}
	}
	return nil
}

// Match answers a zmp.check query. A pattern ending in PackageSeparator
// matches if any registered command lives in that package; any other
// pattern must name a registered command exactly or fall inside a
// registered package.
func (r *Registry) Match(pattern string) bool {
	if pattern == "" {
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if strings.HasSuffix(pattern, PackageSeparator) {
		for name := range r.exact {
			if strings.HasPrefix(name, pattern) {
				return true
			}
		}
		for _, p := range r.packages {
			if strings.HasPrefix(p.Name, pattern) || strings.HasPrefix(pattern, p.Name) {
				return true
			}
		}
		return false
	}

	return r.lookupLocked(pattern) != nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.exact)+len(r.packages))
	for name := range r.exact {
		names = append(names, name)
	}
	for _, p := range r.packages {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered commands.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.exact) + len(r.packages)
}

// Dispatch decodes a block payload and invokes the matching handler.
// It reports whether a handler ran. Malformed blocks return an error
// wrapping util.ErrMalformedBlock; unknown commands return false, nil.
func (r *Registry) Dispatch(s Session, payload []byte) (bool, error) {
	argv, err := Decode(payload)
	if err != nil {
		return false, err
	}

	cmd := r.Lookup(argv[0])
	if cmd == nil {
		return false, nil
	}

	cmd.Handler.Handle(s, argv)
	return true, nil
}
