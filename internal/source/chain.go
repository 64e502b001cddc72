package source

import (
	"fmt"
	"strconv"
	"strings"
)

// Role is the function a stage plays in a source chain.
type Role string

const (
	RoleSource   Role = "source"
	RoleQueue    Role = "queue"
	RoleDepay    Role = "depay"
	RoleParse    Role = "parse"
	RoleDecode   Role = "decode"
	RoleWatchdog Role = "watchdog"
	RoleFreeze   Role = "freeze"
	RoleCrop     Role = "crop"
	RoleScale    Role = "scale"
	RoleBox      Role = "box"
	RoleConvert  Role = "convert"
	RoleCaps     Role = "caps"
	RolePrescale Role = "prescale"
	RoleLabel    Role = "label"
	RoleOutput   Role = "output"
)

var roles = []Role{
	RoleSource, RoleDepay, RoleParse, RoleDecode, RoleWatchdog, RoleFreeze,
	RoleCrop, RoleScale, RoleBox, RoleConvert, RoleCaps, RolePrescale,
	RoleLabel, RoleOutput,
}

// Fraction is a rational property value such as an aspect ratio.
type Fraction struct {
	Num int
	Den int
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Den)
}

// Prop is a single element property assignment. Values are int, bool,
// string or Fraction.
type Prop struct {
	Name  string
	Value any
}

// Stage is one element of a chain.
type Stage struct {
	Role    Role
	Factory string
	Name    string
	Props   []Prop
}

// Prop returns the value of the named property.
func (s Stage) Prop(name string) (any, bool) {
	for _, p := range s.Props {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Chain is a linear sequence of stages ending in the output stage. Its
// single output is the src pad of the stage named OutputName.
type Chain struct {
	ID     string
	Width  int
	Height int
	Stages []Stage
}

// OutputName is the element whose src pad is exposed as the chain output.
func (c Chain) OutputName() string {
	return ElementName(c.ID, RoleOutput)
}

// Stage returns the first stage with the given role.
func (c Chain) Stage(role Role) (Stage, bool) {
	for _, s := range c.Stages {
		if s.Role == role {
			return s, true
		}
	}
	return Stage{}, false
}

// Launch renders the chain as a gst-launch style description with every
// string value quoted.
func (c Chain) Launch() string {
	parts := make([]string, 0, len(c.Stages))
	for _, s := range c.Stages {
		parts = append(parts, s.launch())
	}
	return strings.Join(parts, " ! ")
}

func (s Stage) launch() string {
	var b strings.Builder
	b.WriteString(s.Factory)
	if s.Name != "" {
		b.WriteString(" name=")
		b.WriteString(quote(s.Name))
	}
	for _, p := range s.Props {
		b.WriteByte(' ')
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(formatValue(p.Value))
	}
	return b.String()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case string:
		return quote(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case Fraction:
		return v.String()
	default:
		return quote(fmt.Sprint(v))
	}
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// RawCaps is the normalised output format for a cell.
func RawCaps(width, height int) string {
	return fmt.Sprintf("video/x-raw,width=%d,height=%d,pixel-aspect-ratio=1/1", width, height)
}
