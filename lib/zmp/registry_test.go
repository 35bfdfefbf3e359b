package zmp

import (
	"errors"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/sourcemud/mud-telnet/lib/util"
)

type fakeSession struct {
	sent     [][]string
	support  map[string]bool
	injected []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{support: make(map[string]bool)}
}

func (f *fakeSession) SendZMP(argv ...string) {
	f.sent = append(f.sent, argv)
}

func (f *fakeSession) SetSupport(pkg string, supported bool) {
	f.support[pkg] = supported
}

func (f *fakeSession) InjectLine(line string) {
	f.injected = append(f.injected, line)
}

func noop(Session, []string) {}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	if err := r.RegisterFunc("zmp.ping", noop); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.RegisterFunc("zmp.ping", noop); !errors.Is(err, util.ErrDuplicateCommand) {
		t.Errorf("duplicate Register() error = %v, want ErrDuplicateCommand", err)
	}
	if err := r.RegisterFunc("", noop); !errors.Is(err, util.ErrInvalidCommand) {
		t.Errorf("empty name error = %v, want ErrInvalidCommand", err)
	}
	if err := r.Register("x.y", nil); !errors.Is(err, util.ErrInvalidCommand) {
		t.Errorf("nil handler error = %v, want ErrInvalidCommand", err)
	}
	if err := r.RegisterFunc("zmp.", noop); err != nil {
		t.Fatalf("Register() package error = %v", err)
	}
	if err := r.RegisterFunc("zmp.", noop); !errors.Is(err, util.ErrDuplicateCommand) {
		t.Errorf("duplicate package error = %v, want ErrDuplicateCommand", err)
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}

	r.Seal()
	if !r.Sealed() {
		t.Error("Sealed() = false after Seal")
	}
	if err := r.RegisterFunc("late.cmd", noop); !errors.Is(err, util.ErrRegistrySealed) {
		t.Errorf("Register() after Seal error = %v, want ErrRegistrySealed", err)
	}
}

func TestRegistry_LookupExactBeforePackage(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterFunc("zmp.", noop)
	_ = r.RegisterFunc("zmp.ping", noop)

	tests := []struct {
		name string
		want string
	}{
		{"zmp.ping", "zmp.ping"},
		{"zmp.unknown", "zmp."},
		{"zmp.", "zmp."},
		{"color.define", ""},
		{"zmp", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Twice, so the second answer comes from the cache.
			for i := 0; i < 2; i++ {
				cmd := r.Lookup(tt.name)
				got := ""
				if cmd != nil {
					got = cmd.Name
				}
				if got != tt.want {
					t.Errorf("Lookup(%q) = %q, want %q", tt.name, got, tt.want)
				}
			}
		})
	}
}

func TestRegistry_LongestPackageWins(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterFunc("net.", noop)
	_ = r.RegisterFunc("net.sourcemud.", noop)

	if cmd := r.Lookup("net.sourcemud.name"); cmd == nil || cmd.Name != "net.sourcemud." {
		t.Errorf("Lookup() = %v, want net.sourcemud.", cmd)
	}
	if cmd := r.Lookup("net.other"); cmd == nil || cmd.Name != "net." {
		t.Errorf("Lookup() = %v, want net.", cmd)
	}
}

func TestRegistry_RegisterInvalidatesCache(t *testing.T) {
	r := NewRegistry()
	if r.Lookup("color.use") != nil {
		t.Fatal("Lookup() on empty registry should be nil")
	}
	_ = r.RegisterFunc("color.use", noop)
	if r.Lookup("color.use") == nil {
		t.Error("Lookup() returned stale cached miss after Register")
	}
}

func TestRegistry_CacheBounded(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterFunc("net.sourcemud.", noop)
	r.Seal()

	for i := 0; i < DefaultCacheSize*2; i++ {
		name := "net.sourcemud.cmd" + strconv.Itoa(i)
		if cmd := r.Lookup(name); cmd == nil || cmd.Name != "net.sourcemud." {
			t.Fatalf("Lookup(%q) = %v, want net.sourcemud.", name, cmd)
		}
		_ = r.Lookup("bogus." + strconv.Itoa(i))
	}
	if got := r.cache.Len(); got > DefaultCacheSize {
		t.Errorf("cache holds %d names, want at most %d", got, DefaultCacheSize)
	}
	if !r.cache.Contains("bogus." + strconv.Itoa(DefaultCacheSize*2-1)) {
		t.Error("recent miss should be cached")
	}
}

func TestRegistry_Match(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterFunc("zmp.ping", noop)
	_ = r.RegisterFunc("color.define", noop)
	_ = r.RegisterFunc("net.sourcemud.", noop)

	tests := []struct {
		pattern string
		want    bool
	}{
		{"zmp.ping", true},
		{"zmp.", true},
		{"zmp.pong", false},
		{"color.", true},
		{"color.define", true},
		{"net.sourcemud.", true},
		{"net.sourcemud.name", true},
		{"net.", true},
		{"net.sourcemud.sub.", true},
		{"x.", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			if got := r.Match(tt.pattern); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		})
	}
}

func TestRegistry_Names(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterFunc("zmp.ping", noop)
	_ = r.RegisterFunc("a.", noop)
	want := []string{"a.", "zmp.ping"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	r := NewRegistry()
	var got []string
	_ = r.RegisterFunc("test.cmd", func(_ Session, argv []string) {
		got = argv
	})

	s := newFakeSession()
	ok, err := r.Dispatch(s, []byte("test.cmd\x00one\x00two\x00"))
	if err != nil || !ok {
		t.Fatalf("Dispatch() = %v, %v, want true, nil", ok, err)
	}
	if want := []string{"test.cmd", "one", "two"}; !reflect.DeepEqual(got, want) {
		t.Errorf("handler argv = %q, want %q", got, want)
	}

	ok, err = r.Dispatch(s, []byte("other.cmd\x00"))
	if ok || err != nil {
		t.Errorf("Dispatch() unknown = %v, %v, want false, nil", ok, err)
	}

	_, err = r.Dispatch(s, []byte("test.cmd"))
	if !errors.Is(err, util.ErrMalformedBlock) {
		t.Errorf("Dispatch() malformed error = %v, want ErrMalformedBlock", err)
	}
}

func TestBuiltins(t *testing.T) {
	r := NewRegistry()
	clock := func() time.Time {
		return time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("X", 3600))
	}
	if err := RegisterBuiltins(r, clock); err != nil {
		t.Fatalf("RegisterBuiltins() error = %v", err)
	}
	_ = r.RegisterFunc("color.define", noop)
	r.Seal()

	t.Run("ping", func(t *testing.T) {
		s := newFakeSession()
		_, _ = r.Dispatch(s, EncodePayload(CmdPing))
		want := [][]string{{CmdTime, "2024-03-09 13:05:07"}}
		if !reflect.DeepEqual(s.sent, want) {
			t.Errorf("sent = %q, want %q", s.sent, want)
		}
	})

	t.Run("check", func(t *testing.T) {
		s := newFakeSession()
		_, _ = r.Dispatch(s, EncodePayload(CmdCheck, "color.define"))
		_, _ = r.Dispatch(s, EncodePayload(CmdCheck, "net.sourcemud."))
		_, _ = r.Dispatch(s, EncodePayload(CmdCheck))
		want := [][]string{
			{CmdSupport, "color.define"},
			{CmdNoSupport, "net.sourcemud."},
		}
		if !reflect.DeepEqual(s.sent, want) {
			t.Errorf("sent = %q, want %q", s.sent, want)
		}
	})

	t.Run("support", func(t *testing.T) {
		s := newFakeSession()
		_, _ = r.Dispatch(s, EncodePayload(CmdSupport, "color.define"))
		_, _ = r.Dispatch(s, EncodePayload(CmdNoSupport, "net.sourcemud."))
		if !s.support["color.define"] {
			t.Error("color.define support not recorded")
		}
		if v, ok := s.support["net.sourcemud."]; !ok || v {
			t.Errorf("net.sourcemud. support = %v, %v, want false, true", v, ok)
		}
	})

	t.Run("input", func(t *testing.T) {
		s := newFakeSession()
		_, _ = r.Dispatch(s, EncodePayload(CmdInput, "look"))
		if !reflect.DeepEqual(s.injected, []string{"look"}) {
			t.Errorf("injected = %q, want [look]", s.injected)
		}
	})
}
