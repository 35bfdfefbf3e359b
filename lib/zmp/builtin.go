package zmp

import (
	"time"
)

// TimeFormat is the layout of the zmp.time reply.
const TimeFormat = "2006-01-02 15:04:05"

// Built-in command names.
const (
	CmdPing      = "zmp.ping"
	CmdTime      = "zmp.time"
	CmdCheck     = "zmp.check"
	CmdSupport   = "zmp.support"
	CmdNoSupport = "zmp.no-support"
	CmdInput     = "zmp.input"
	CmdIdent     = "zmp.ident"
)

// RegisterBuiltins installs the core zmp.* commands. now supplies the
// clock for zmp.ping; nil means time.Now.
func RegisterBuiltins(r *Registry, now func() time.Time) error {
	if now == nil {
		now = time.Now
	}

	builtins := []struct {
		name string
		fn   func(Session, []string)
	}{
		{CmdPing, func(s Session, _ []string) {
			s.SendZMP(CmdTime, now().UTC().Format(TimeFormat))
		}},
		{CmdCheck, func(s Session, argv []string) {
			if len(argv) < 2 {
				return
			}
			if r.Match(argv[1]) {
				s.SendZMP(CmdSupport, argv[1])
			} else {
				s.SendZMP(CmdNoSupport, argv[1])
			}
		}},
		{CmdSupport, func(s Session, argv []string) {
			if len(argv) >= 2 {
				s.SetSupport(argv[1], true)
			}
		}},
		{CmdNoSupport, func(s Session, argv []string) {
			if len(argv) >= 2 {
				s.SetSupport(argv[1], false)
			}
		}},
		{CmdInput, func(s Session, argv []string) {
			if len(argv) >= 2 {
				s.InjectLine(argv[1])
			}
		}},
	}

	for _, b := range builtins {
		if err := r.RegisterFunc(b.name, b.fn); err != nil {
			return err
		}
	}
	return nil
}
