package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/sirupsen/logrus"

	"github.com/sourcemud/mud-telnet/lib/session"
	"github.com/sourcemud/mud-telnet/lib/telnet"
	"github.com/sourcemud/mud-telnet/lib/zmp"
)

// CmdWho is the ZMP command that lists connected players.
const CmdWho = "net.sourcemud.who"

const (
	minNameLen = 2
	maxNameLen = 16
)

// roster maps session IDs to the names their players chose.
type roster struct {
	mu    sync.Mutex
	names map[string]string
}

func newRoster() *roster {
	return &roster{names: make(map[string]string)}
}

// claim records name for id unless another session already holds it.
func (r *roster) claim(id, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for other, n := range r.names {
		if other != id && strings.EqualFold(n, name) {
			return false
		}
	}
	r.names[id] = name
	return true
}

func (r *roster) release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, id)
}

// list returns the claimed names in alphabetical order.
func (r *roster) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// talker is a tiny chat room: the first line names the player and every
// line after that is said to everyone else.
type talker struct {
	registry session.Registry
	roster   *roster
	name     string
}

func newTalker(registry session.Registry, r *roster) *talker {
	return &talker{registry: registry, roster: r}
}

func (t *talker) Initialize(s *telnet.Session) error {
	_, err := s.WriteString(telnet.Markup(telnet.ColorTitle) + "Welcome!" + telnet.MarkNormal +
		"\nBy what name are you known?\n")
	return err
}

func (t *talker) Process(s *telnet.Session, line string) {
	line = strings.TrimSpace(line)
	if t.name == "" {
		t.login(s, line)
		return
	}
	if line == "" {
		return
	}

	verb, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(verb) {
	case "who":
		t.who(s)
	case "quit":
		_, _ = s.WriteString("Goodbye.\n")
		_ = s.Close()
	case "colors", "colours":
		t.colors(s)
	case "say":
		t.say(s, rest)
	default:
		t.say(s, line)
	}
}

func (t *talker) login(s *telnet.Session, name string) {
	if !validName(name) {
		s.Printf("Names are %d to %d letters long. Try again:\n", minNameLen, maxNameLen)
		return
	}
	name = strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
	if !t.roster.claim(s.ID(), name) {
		s.Printf("%s is already here. Pick another name:\n", name)
		return
	}
	t.name = name

	s.Printf("Hello, %s%s%s. Type %swho%s, %ssay%s, %scolors%s or %squit%s.\n",
		telnet.Markup(telnet.ColorPlayer), name, telnet.MarkNormal,
		telnet.Markup(telnet.ColorBold), telnet.MarkNormal,
		telnet.Markup(telnet.ColorBold), telnet.MarkNormal,
		telnet.Markup(telnet.ColorBold), telnet.MarkNormal,
		telnet.Markup(telnet.ColorBold), telnet.MarkNormal)
	t.registry.Broadcast(fmt.Sprintf("%s%s%s has arrived.\n",
		telnet.Markup(telnet.ColorPlayer), name, telnet.MarkNormal), s.ID())
	s.Logger().WithField("name", name).Info("Player logged in")
}

func validName(name string) bool {
	if len(name) < minNameLen || len(name) > maxNameLen {
		return false
	}
	for _, r := range name {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func (t *talker) say(s *telnet.Session, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		_, _ = s.WriteString("Say what?\n")
		return
	}
	talk := telnet.Markup(telnet.ColorTalk)
	s.Printf("You say, %s\"%s\"%s\n", talk, text, telnet.MarkNormal)
	t.registry.Broadcast(fmt.Sprintf("%s%s%s says, %s\"%s\"%s\n",
		telnet.Markup(telnet.ColorPlayer), t.name, telnet.MarkNormal,
		talk, text, telnet.MarkNormal), s.ID())
}

func (t *talker) who(s *telnet.Session) {
	names := t.roster.list()
	_, _ = s.WriteString(telnet.Markup(telnet.ColorTitle) + "Players online" + telnet.MarkNormal + "\n")
	_, _ = s.WriteString(telnet.IndentMarkup(2))
	for _, n := range names {
		s.Printf("%s%s%s\n", telnet.Markup(telnet.ColorPlayer), n, telnet.MarkNormal)
	}
	_, _ = s.WriteString(telnet.IndentMarkup(0))
	s.Printf("%d connected.\n", len(names))
}

func (t *talker) colors(s *telnet.Session) {
	for c := telnet.ColorTitle; c.Valid(); c++ {
		s.Printf("%-14s %s%s%s\n", c.Name(), telnet.Markup(c), s.Color(c).Name(), telnet.MarkNormal)
	}
	_, _ = s.WriteString("Capacity ")
	s.DrawBar(60)
	_, _ = s.WriteString("\n")
}

func (t *talker) Prompt(s *telnet.Session) {
	if t.name == "" {
		_, _ = s.WriteString("name:")
		return
	}
	_, _ = s.WriteString(t.name + ">")
}

func (t *talker) Shutdown(s *telnet.Session) {
	if t.name == "" {
		return
	}
	t.roster.release(s.ID())
	t.registry.Broadcast(fmt.Sprintf("%s%s%s has left.\n",
		telnet.Markup(telnet.ColorPlayer), t.name, telnet.MarkNormal), s.ID())
}

func (t *talker) CapabilitiesChanged(s *telnet.Session, caps telnet.Capabilities) {
	s.Logger().WithFields(logrus.Fields{
		"width":    caps.Width,
		"height":   caps.Height,
		"terminal": caps.TerminalType,
		"zmp":      caps.ZMP,
	}).Debug("Client capabilities changed")
}

// registerCommands adds the talker's ZMP commands.
func registerCommands(r *zmp.Registry, names *roster) error {
	return r.RegisterFunc(CmdWho, func(s zmp.Session, _ []string) {
		s.SendZMP(append([]string{CmdWho}, names.list()...)...)
	})
}

var (
	_ telnet.Mode               = (*talker)(nil)
	_ telnet.Initializer        = (*talker)(nil)
	_ telnet.CapabilityListener = (*talker)(nil)
)
