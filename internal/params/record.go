// Package params extracts experiment parameters from detector file names.
//
// Acquisition software encodes the instrument configuration in the file
// name, e.g.
//
//	ACI_ESA-Inner-62-Hor79_Beam-1000eV_Focus-X-pt4-Y-2_Offset-X--pt1_Y-1_Wave-Triangle_ESA--181_MCP-2200-100240922-213604.fits
//	ACI ESA 912V 5KEV BEAM240921-215835.fits
//
// Parse turns such a name into a Record. Parsing never fails; anything that
// cannot be extracted is left nil.
package params

import "time"

// FileType is the detector payload format implied by the extension.
type FileType string

const (
	FileTypeFITS    FileType = "fits"
	FileTypeMap     FileType = "map"
	FileTypePHD     FileType = "phd"
	FileTypeUnknown FileType = "unknown"
)

// TestType classifies what kind of acquisition a file holds.
type TestType string

const (
	TestDark         TestType = "dark"
	TestRampUp       TestType = "ramp_up"
	TestRotating     TestType = "rotating"
	TestVoltageSweep TestType = "voltage_sweep"
	TestEnergy       TestType = "energy_test"
	TestUnknown      TestType = "unknown"
)

// AngleRange is a rotation swept during one acquisition, Min <= Max.
type AngleRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Record holds the parameters encoded in one file name. Optional values are
// pointers; nil means the name did not carry the parameter.
type Record struct {
	SourcePath string   `json:"source_path"`
	FileType   FileType `json:"file_type"`

	BeamEnergy *float64 `json:"beam_energy_value,omitempty"` // eV
	ESAVoltage *float64 `json:"esa_voltage_value,omitempty"` // V, signed

	// InnerAngle holds the midpoint when InnerAngleRange is set.
	InnerAngle      *float64    `json:"inner_angle_value,omitempty"`
	InnerAngleRange *AngleRange `json:"inner_angle_range,omitempty"`

	Horizontal *float64 `json:"horizontal_value,omitempty"`
	FocusX     *float64 `json:"focus_x,omitempty"`
	FocusY     *float64 `json:"focus_y,omitempty"`
	OffsetX    *float64 `json:"offset_x,omitempty"`
	OffsetY    *float64 `json:"offset_y,omitempty"`
	Waveform   *string  `json:"waveform,omitempty"`
	MCPSetting *string  `json:"mcp_setting,omitempty"`
	// MCPVoltage is the leading number of MCPSetting.
	MCPVoltage *float64   `json:"mcp_voltage,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`

	TestType TestType `json:"test_type"`
	Sequence string   `json:"sequence,omitempty"`

	// Unparsed lists fields whose prefix was present but whose value could
	// not be read.
	Unparsed []Field `json:"unparsed,omitempty"`
}

// IsAngleRange reports whether the file was acquired while rotating through
// an angle interval.
func (r Record) IsAngleRange() bool {
	return r.InnerAngleRange != nil
}

// Value returns the parameter f through a uniform accessor.
func (r Record) Value(f Field) Value {
	switch f {
	case BeamEnergy:
		return valueOf(r.BeamEnergy, NumberValue)
	case ESAVoltage:
		return valueOf(r.ESAVoltage, NumberValue)
	case InnerAngle:
		return valueOf(r.InnerAngle, NumberValue)
	case Horizontal:
		return valueOf(r.Horizontal, NumberValue)
	case FocusX:
		return valueOf(r.FocusX, NumberValue)
	case FocusY:
		return valueOf(r.FocusY, NumberValue)
	case OffsetX:
		return valueOf(r.OffsetX, NumberValue)
	case OffsetY:
		return valueOf(r.OffsetY, NumberValue)
	case Waveform:
		return valueOf(r.Waveform, TextValue)
	case MCPSetting:
		return valueOf(r.MCPSetting, TextValue)
	case Timestamp:
		return valueOf(r.Timestamp, TimeValue)
	}
	return Value{}
}
