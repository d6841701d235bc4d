package params

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Field names one experimental parameter carried by a Record. The string
// form is the name used in reports, config files and stored runs.
type Field string

const (
	BeamEnergy Field = "beam_energy_value"
	ESAVoltage Field = "esa_voltage_value"
	InnerAngle Field = "inner_angle_value"
	Horizontal Field = "horizontal_value"
	FocusX     Field = "focus_x"
	FocusY     Field = "focus_y"
	OffsetX    Field = "offset_x"
	OffsetY    Field = "offset_y"
	Waveform   Field = "waveform"
	MCPSetting Field = "mcp_setting"
	Timestamp  Field = "timestamp"
)

// Fields is the registry of every parameter a Record exposes through Value,
// in report order.
var Fields = []Field{
	BeamEnergy, ESAVoltage, InnerAngle, Horizontal,
	FocusX, FocusY, OffsetX, OffsetY,
	Waveform, MCPSetting, Timestamp,
}

// ExperimentalFields are the fields that describe the instrument
// configuration. Timestamp is excluded: every acquisition has its own.
var ExperimentalFields = []Field{
	BeamEnergy, ESAVoltage, InnerAngle, Horizontal,
	FocusX, FocusY, OffsetX, OffsetY,
	Waveform, MCPSetting,
}

// ParseField resolves a field name. Short aliases used on the command line
// ("beam", "esa", "angle") are accepted.
func ParseField(s string) (Field, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "beam", "beam_energy", "energy":
		return BeamEnergy, nil
	case "esa", "esa_voltage", "voltage":
		return ESAVoltage, nil
	case "angle", "inner", "inner_angle", "elevation":
		return InnerAngle, nil
	case "hor", "horizontal", "azimuth":
		return Horizontal, nil
	}
	for _, f := range Fields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown parameter %q", s)
}

// IsAngle reports whether absence of this field may be read as "held
// constant during the measurement".
func (f Field) IsAngle() bool {
	return f == InnerAngle
}

// Label is a short human readable name.
func (f Field) Label() string {
	switch f {
	case BeamEnergy:
		return "Beam energy (eV)"
	case ESAVoltage:
		return "ESA voltage (V)"
	case InnerAngle:
		return "Inner angle (deg)"
	case Horizontal:
		return "Horizontal (deg)"
	}
	return string(f)
}

// ValueKind tags the content of a Value.
type ValueKind uint8

const (
	Absent ValueKind = iota
	Number
	Text
	Time
)

// Value is a comparable parameter value. The zero Value is Absent, which is
// distinct from a numeric zero. Values are safe to use as map keys.
type Value struct {
	kind ValueKind
	num  float64
	text string
	ns   int64
}

// NumberValue returns a numeric Value.
func NumberValue(v float64) Value { return Value{kind: Number, num: v} }

// TextValue returns a text Value.
func TextValue(s string) Value { return Value{kind: Text, text: s} }

// TimeValue returns a time Value at nanosecond resolution.
func TimeValue(t time.Time) Value { return Value{kind: Time, ns: t.UnixNano()} }

func valueOf[T any](p *T, conv func(T) Value) Value {
	if p == nil {
		return Value{}
	}
	return conv(*p)
}

// Kind returns the value's tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsAbsent reports whether the parameter was not present.
func (v Value) IsAbsent() bool { return v.kind == Absent }

// Float returns the numeric value, if any.
func (v Value) Float() (float64, bool) {
	if v.kind != Number {
		return 0, false
	}
	return v.num, true
}

// Time returns the timestamp value, if any.
func (v Value) Time() (time.Time, bool) {
	if v.kind != Time {
		return time.Time{}, false
	}
	return time.Unix(0, v.ns).UTC(), true
}

func (v Value) String() string {
	switch v.kind {
	case Number:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case Text:
		return v.text
	case Time:
		t, _ := v.Time()
		return t.Format("2006-01-02 15:04:05")
	}
	return "absent"
}

// Compare orders values: absent first, then numbers ascending, then text,
// then times.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case Number:
		switch {
		case a.num < b.num:
			return -1
		case a.num > b.num:
			return 1
		}
	case Text:
		return strings.Compare(a.text, b.text)
	case Time:
		switch {
		case a.ns < b.ns:
			return -1
		case a.ns > b.ns:
			return 1
		}
	}
	return 0
}
