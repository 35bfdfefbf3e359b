package telnet

import (
	"strconv"
)

// ColorType is a semantic colour slot used in markup (title, npc, ...).
type ColorType int

const (
	ColorNormal ColorType = iota
	ColorTitle
	ColorDesc
	ColorPlayer
	ColorNPC
	ColorItem
	ColorSpecial
	ColorAdmin
	ColorPortal
	ColorStat
	ColorStatVeryBad
	ColorStatBad
	ColorStatGood
	ColorStatVeryGood
	ColorBold
	ColorTalk

	NumColorTypes = int(iota)
)

// ColorValue indexes the palette of concrete terminal colours.
type ColorValue int

const (
	ValueNormal ColorValue = iota
	ValueBlack
	ValueRed
	ValueGreen
	ValueBrown
	ValueBlue
	ValueMagenta
	ValueCyan
	ValueGrey
	ValueLightBlack
	ValueLightRed
	ValueLightGreen
	ValueYellow
	ValueLightBlue
	ValueLightMagenta
	ValueLightCyan
	ValueWhite
	ValueDarkRed
	ValueDarkGreen
	ValueDarkYellow
	ValueDarkBlue
	ValueDarkMagenta
	ValueDarkCyan
	ValueDarkGrey

	NumColorValues = int(iota)
)

// ANSINormal resets all terminal attributes.
const ANSINormal = "\x1b[0m"

// Markup strings understood by the output engine.
const (
	MarkNormal = "\x1b!C0!"
	MarkAdmin  = "\x1b!C7!"
)

// Markup returns the inline escape that switches to colour type t.
func Markup(t ColorType) string {
	return "\x1b!C" + strconv.Itoa(int(t)) + "!"
}

// IndentMarkup returns the inline escape that sets the left margin.
func IndentMarkup(n int) string {
	return "\x1b!I" + strconv.Itoa(n) + "!"
}

var valueNames = [NumColorValues]string{
	"normal", "black", "red", "green", "brown", "blue", "magenta", "cyan",
	"grey", "lightblack", "lightred", "lightgreen", "yellow", "lightblue",
	"lightmagenta", "lightcyan", "white", "darkred", "darkgreen",
	"darkyellow", "darkblue", "darkmagenta", "darkcyan", "darkgrey",
}

// Every sequence resets attributes first so nested colours never bleed.
var valueANSI = [NumColorValues]string{
	ANSINormal,
	"\x1b[0;30m", "\x1b[0;31m", "\x1b[0;32m", "\x1b[0;33m",
	"\x1b[0;34m", "\x1b[0;35m", "\x1b[0;36m", "\x1b[0;37m",
	"\x1b[1;30m", "\x1b[1;31m", "\x1b[1;32m", "\x1b[1;33m",
	"\x1b[1;34m", "\x1b[1;35m", "\x1b[1;36m", "\x1b[1;37m",
	"\x1b[2;31m", "\x1b[2;32m", "\x1b[2;33m",
	"\x1b[2;34m", "\x1b[2;35m", "\x1b[2;36m", "\x1b[2;37m",
}

var typeNames = [NumColorTypes]string{
	"normal", "title", "desc", "player", "npc", "item", "special", "admin",
	"portal", "stat", "statvbad", "statbad", "statgood", "statvgood",
	"bold", "talk",
}

var typeDefaults = [NumColorTypes]ColorValue{
	ValueNormal,
	ValueGreen,
	ValueNormal,
	ValueMagenta,
	ValueBrown,
	ValueLightBlue,
	ValueBrown,
	ValueRed,
	ValueCyan,
	ValueGrey,
	ValueLightRed,
	ValueYellow,
	ValueLightCyan,
	ValueLightGreen,
	ValueBrown,
	ValueCyan,
}

// RGB hints sent to ZMP clients in color.define.
var typeRGB = [NumColorTypes]string{
	"", "#0A0", "", "#A05", "#A50", "#0A0", "#A50", "#500",
	"#0AF", "", "#A00", "#AA5", "#5AF", "#5FA", "#A50", "#05A",
}

// Palette maps colour types to concrete colours. It is built once at
// startup and shared read-only by every session; per-session overrides
// live on the session.
type Palette struct {
	defaults [NumColorTypes]ColorValue
}

// DefaultPalette returns the built-in type to colour mapping.
func DefaultPalette() *Palette {
	return &Palette{defaults: typeDefaults}
}

// NewPalette returns a palette with the given type overrides applied to
// the defaults. Unknown names are reported in the error.
func NewPalette(overrides map[string]string) (*Palette, error) {
	p := DefaultPalette()
	for typeName, valueName := range overrides {
		t, ok := LookupColorType(typeName)
		if !ok {
			return nil, &ColorError{Name: typeName, Kind: "colour type"}
		}
		v, ok := LookupColorValue(valueName)
		if !ok {
			return nil, &ColorError{Name: valueName, Kind: "colour"}
		}
		p.defaults[t] = v
	}
	return p, nil
}

// Default returns the colour used for t when the session has no override.
func (p *Palette) Default(t ColorType) ColorValue {
	if !t.Valid() {
		return ValueNormal
	}
	return p.defaults[t]
}

// Valid reports whether t is a known colour type.
func (t ColorType) Valid() bool {
	return t >= 0 && int(t) < NumColorTypes
}

// Name returns the colour type name used in color.define.
func (t ColorType) Name() string {
	if !t.Valid() {
		return ""
	}
	return typeNames[t]
}

// RGB returns the colour hint for ZMP clients, or "".
func (t ColorType) RGB() string {
	if !t.Valid() {
		return ""
	}
	return typeRGB[t]
}

// Valid reports whether v is a known colour.
func (v ColorValue) Valid() bool {
	return v >= 0 && int(v) < NumColorValues
}

// Name returns the colour name.
func (v ColorValue) Name() string {
	if !v.Valid() {
		return ""
	}
	return valueNames[v]
}

// ANSI returns the escape sequence selecting v.
func (v ColorValue) ANSI() string {
	if !v.Valid() {
		return ANSINormal
	}
	return valueANSI[v]
}

// LookupColorType finds a colour type by name.
func LookupColorType(name string) (ColorType, bool) {
	for i, n := range typeNames {
		if n == name {
			return ColorType(i), true
		}
	}
	return 0, false
}

// LookupColorValue finds a colour by name.
func LookupColorValue(name string) (ColorValue, bool) {
	for i, n := range valueNames {
		if n == name {
			return ColorValue(i), true
		}
	}
	return 0, false
}

// ColorError reports an unknown colour or colour type name.
type ColorError struct {
	Name string
	Kind string
}

// Error implements the error interface.
func (e *ColorError) Error() string {
	return "unknown " + e.Kind + " " + strconv.Quote(e.Name)
}
