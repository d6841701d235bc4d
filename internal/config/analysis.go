package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/esa.report/internal/params"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// AnalysisConfig holds the tunable thresholds of an analysis run. Every
// field is optional; the Get* methods supply defaults for nil fields so
// partial config files are safe.
type AnalysisConfig struct {
	// Grouping
	MinGroupSize      *int     `json:"min_group_size,omitempty" yaml:"min_group_size,omitempty"`
	MaxFixedParams    *int     `json:"max_fixed_params,omitempty" yaml:"max_fixed_params,omitempty"`
	IncludeMultiple   *bool    `json:"include_multiple,omitempty" yaml:"include_multiple,omitempty"`
	AngleOverride     *bool    `json:"angle_override,omitempty" yaml:"angle_override,omitempty"`
	InterestingParams []string `json:"interesting_params,omitempty" yaml:"interesting_params,omitempty"`

	// Quality check
	MinNonZeroPixels *int `json:"min_nonzero_pixels,omitempty" yaml:"min_nonzero_pixels,omitempty"`

	// Impact region extraction
	NoiseThreshold  *float64 `json:"noise_threshold,omitempty" yaml:"noise_threshold,omitempty"` // fraction of peak
	MinRegionSize   *int     `json:"min_region_size,omitempty" yaml:"min_region_size,omitempty"`
	DetectorCenterX *float64 `json:"detector_center_x,omitempty" yaml:"detector_center_x,omitempty"`

	// Count rates and integrated maps
	TargetCountRate *float64 `json:"target_count_rate,omitempty" yaml:"target_count_rate,omitempty"` // counts/s
	DetectorWidth   *int     `json:"detector_width,omitempty" yaml:"detector_width,omitempty"`
	DetectorHeight  *int     `json:"detector_height,omitempty" yaml:"detector_height,omitempty"`
	ExposureKeys    []string `json:"exposure_keys,omitempty" yaml:"exposure_keys,omitempty"`

	// Run
	Workers             *int     `json:"workers,omitempty" yaml:"workers,omitempty"`
	BeamEnergyTolerance *float64 `json:"beam_energy_tolerance,omitempty" yaml:"beam_energy_tolerance,omitempty"` // eV
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields unset.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// DefaultAnalysisConfig returns a config with every field set to its default.
func DefaultAnalysisConfig() *AnalysisConfig {
	c := EmptyAnalysisConfig()
	return &AnalysisConfig{
		MinGroupSize:        ptrInt(c.GetMinGroupSize()),
		MaxFixedParams:      ptrInt(c.GetMaxFixedParams()),
		IncludeMultiple:     ptrBool(c.GetIncludeMultiple()),
		AngleOverride:       ptrBool(c.GetAngleOverride()),
		InterestingParams:   []string{string(params.BeamEnergy), string(params.ESAVoltage), string(params.InnerAngle)},
		MinNonZeroPixels:    ptrInt(c.GetMinNonZeroPixels()),
		NoiseThreshold:      ptrFloat64(c.GetNoiseThreshold()),
		MinRegionSize:       ptrInt(c.GetMinRegionSize()),
		DetectorCenterX:     ptrFloat64(c.GetDetectorCenterX()),
		TargetCountRate:     ptrFloat64(c.GetTargetCountRate()),
		DetectorWidth:       ptrInt(c.GetDetectorWidth()),
		DetectorHeight:      ptrInt(c.GetDetectorHeight()),
		ExposureKeys:        c.GetExposureKeys(),
		Workers:             ptrInt(c.GetWorkers()),
		BeamEnergyTolerance: ptrFloat64(c.GetBeamEnergyTolerance()),
	}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON or YAML file.
// The file is validated to ensure it has a known extension and is under the
// max file size. Fields omitted from the file retain their default values.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyAnalysisConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	if c.MinGroupSize != nil && *c.MinGroupSize < 1 {
		return fmt.Errorf("%w: min_group_size must be at least 1, got %d", ErrInvalid, *c.MinGroupSize)
	}
	if c.MaxFixedParams != nil && (*c.MaxFixedParams < 1 || *c.MaxFixedParams > 3) {
		return fmt.Errorf("%w: max_fixed_params must be between 1 and 3, got %d", ErrInvalid, *c.MaxFixedParams)
	}
	if c.MinNonZeroPixels != nil && *c.MinNonZeroPixels < 0 {
		return fmt.Errorf("%w: min_nonzero_pixels must be non-negative, got %d", ErrInvalid, *c.MinNonZeroPixels)
	}
	if c.NoiseThreshold != nil && (*c.NoiseThreshold < 0 || *c.NoiseThreshold > 1) {
		return fmt.Errorf("%w: noise_threshold must be between 0 and 1, got %f", ErrInvalid, *c.NoiseThreshold)
	}
	if c.MinRegionSize != nil && *c.MinRegionSize < 1 {
		return fmt.Errorf("%w: min_region_size must be at least 1, got %d", ErrInvalid, *c.MinRegionSize)
	}
	if c.DetectorCenterX != nil && *c.DetectorCenterX <= 0 {
		return fmt.Errorf("%w: detector_center_x must be positive, got %f", ErrInvalid, *c.DetectorCenterX)
	}
	if c.TargetCountRate != nil && *c.TargetCountRate <= 0 {
		return fmt.Errorf("%w: target_count_rate must be positive, got %f", ErrInvalid, *c.TargetCountRate)
	}
	if c.DetectorWidth != nil && *c.DetectorWidth <= 0 {
		return fmt.Errorf("%w: detector_width must be positive, got %d", ErrInvalid, *c.DetectorWidth)
	}
	if c.DetectorHeight != nil && *c.DetectorHeight <= 0 {
		return fmt.Errorf("%w: detector_height must be positive, got %d", ErrInvalid, *c.DetectorHeight)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("%w: workers must be at least 1, got %d", ErrInvalid, *c.Workers)
	}
	if c.BeamEnergyTolerance != nil && *c.BeamEnergyTolerance < 0 {
		return fmt.Errorf("%w: beam_energy_tolerance must be non-negative, got %f", ErrInvalid, *c.BeamEnergyTolerance)
	}
	for _, name := range c.InterestingParams {
		f, err := params.ParseField(name)
		if err != nil {
			return fmt.Errorf("%w: interesting_params: %v", ErrInvalid, err)
		}
		if f == params.Timestamp {
			return fmt.Errorf("%w: interesting_params: timestamp cannot be held fixed", ErrInvalid)
		}
	}
	return nil
}

// GetMinGroupSize returns the min_group_size value or the default.
func (c *AnalysisConfig) GetMinGroupSize() int {
	if c.MinGroupSize == nil {
		return 2
	}
	return *c.MinGroupSize
}

// GetMaxFixedParams returns the max_fixed_params value or the default.
func (c *AnalysisConfig) GetMaxFixedParams() int {
	if c.MaxFixedParams == nil {
		return 2
	}
	return *c.MaxFixedParams
}

// GetIncludeMultiple returns the include_multiple value or the default.
func (c *AnalysisConfig) GetIncludeMultiple() bool {
	if c.IncludeMultiple == nil {
		return false
	}
	return *c.IncludeMultiple
}

// GetAngleOverride returns the angle_override value or the default.
func (c *AnalysisConfig) GetAngleOverride() bool {
	if c.AngleOverride == nil {
		return true
	}
	return *c.AngleOverride
}

// GetInterestingParams returns the fields enumerated as fixed-parameter
// candidates. Invalid names are skipped; Validate reports them.
func (c *AnalysisConfig) GetInterestingParams() []params.Field {
	if len(c.InterestingParams) == 0 {
		return []params.Field{params.BeamEnergy, params.ESAVoltage, params.InnerAngle}
	}
	out := make([]params.Field, 0, len(c.InterestingParams))
	for _, name := range c.InterestingParams {
		if f, err := params.ParseField(name); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// GetMinNonZeroPixels returns the min_nonzero_pixels value or the default.
func (c *AnalysisConfig) GetMinNonZeroPixels() int {
	if c.MinNonZeroPixels == nil {
		return 1
	}
	return *c.MinNonZeroPixels
}

// GetNoiseThreshold returns the noise_threshold value or the default.
func (c *AnalysisConfig) GetNoiseThreshold() float64 {
	if c.NoiseThreshold == nil {
		return 0.05
	}
	return *c.NoiseThreshold
}

// GetMinRegionSize returns the min_region_size value or the default.
func (c *AnalysisConfig) GetMinRegionSize() int {
	if c.MinRegionSize == nil {
		return 10
	}
	return *c.MinRegionSize
}

// GetDetectorCenterX returns the detector_center_x value or the default.
func (c *AnalysisConfig) GetDetectorCenterX() float64 {
	if c.DetectorCenterX == nil {
		return 512
	}
	return *c.DetectorCenterX
}

// GetTargetCountRate returns the target_count_rate value or the default.
func (c *AnalysisConfig) GetTargetCountRate() float64 {
	if c.TargetCountRate == nil {
		return 100
	}
	return *c.TargetCountRate
}

// GetDetectorWidth returns the detector_width value or the default.
func (c *AnalysisConfig) GetDetectorWidth() int {
	if c.DetectorWidth == nil {
		return 1024
	}
	return *c.DetectorWidth
}

// GetDetectorHeight returns the detector_height value or the default.
func (c *AnalysisConfig) GetDetectorHeight() int {
	if c.DetectorHeight == nil {
		return 1024
	}
	return *c.DetectorHeight
}

// GetExposureKeys returns the header keywords searched for collection time.
func (c *AnalysisConfig) GetExposureKeys() []string {
	if len(c.ExposureKeys) == 0 {
		return []string{"EXPTIME", "EXPOSURE", "OBSTIME", "TELAPSE", "LIVETIME"}
	}
	return c.ExposureKeys
}

// GetWorkers returns the workers value or the default.
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetBeamEnergyTolerance returns the beam_energy_tolerance value or the default.
func (c *AnalysisConfig) GetBeamEnergyTolerance() float64 {
	if c.BeamEnergyTolerance == nil {
		return 1.0
	}
	return *c.BeamEnergyTolerance
}
