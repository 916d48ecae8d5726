package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the documented example configuration.
const DefaultConfigPath = "config/detection.example.json"

// Detection methods.
const (
	MethodOmnibus    = "omnibus"
	MethodRatio      = "ratio"
	MethodDifference = "difference"
)

// Date modes.
const (
	DateModeFirst           = "first"
	DateModeMostSignificant = "most_significant"
)

// Corrections.
const (
	CorrectionNone       = "none"
	CorrectionBonferroni = "bonferroni"
	CorrectionFDR        = "fdr"
)

// maxFileSize caps configuration files at 1MB.
const maxFileSize = 1 * 1024 * 1024

var validate = validator.New()

// DetectionConfig is the root configuration for a change-detection run.
// Every field is optional except significance_level and correction, which
// are deliberately never defaulted. The Get* methods supply defaults for
// the rest, so partial configs are safe.
type DetectionConfig struct {
	SignificanceLevel *float64 `json:"significance_level,omitempty" yaml:"significance_level,omitempty" validate:"required,gt=0,lt=1"`
	Correction        *string  `json:"correction,omitempty" yaml:"correction,omitempty" validate:"required,oneof=none bonferroni fdr"`

	// Detector params
	Method         *string  `json:"method,omitempty" yaml:"method,omitempty" validate:"omitempty,oneof=omnibus ratio difference"`
	MinSplitLength *int     `json:"min_split_length,omitempty" yaml:"min_split_length,omitempty" validate:"omitempty,gte=2"`
	LooksOverride  *float64 `json:"looks_override,omitempty" yaml:"looks_override,omitempty" validate:"omitempty,gt=0"`

	// Pairwise method params
	RatioThreshold        *float64 `json:"ratio_threshold,omitempty" yaml:"ratio_threshold,omitempty" validate:"omitempty,gt=1"`
	DifferenceThresholdDB *float64 `json:"difference_threshold_db,omitempty" yaml:"difference_threshold_db,omitempty" validate:"omitempty,gt=0"`

	// Products
	DateMode *string `json:"date_mode,omitempty" yaml:"date_mode,omitempty" validate:"omitempty,oneof=first most_significant"`

	// Scheduling
	Workers  *int `json:"workers,omitempty" yaml:"workers,omitempty" validate:"omitempty,gte=0,lte=1024"`
	TileRows *int `json:"tile_rows,omitempty" yaml:"tile_rows,omitempty" validate:"omitempty,gte=1"`
}

// Ptr returns a pointer to v, for building configs in code.
func Ptr[T any](v T) *T { return &v }

// NewDetectionConfig returns a config with the two required fields set.
func NewDetectionConfig(alpha float64, correction string) *DetectionConfig {
	return &DetectionConfig{SignificanceLevel: &alpha, Correction: &correction}
}

// LoadDetectionConfig loads a DetectionConfig from a JSON or YAML file.
// The file must have a .json, .yaml or .yml extension and be under 1MB.
func LoadDetectionConfig(path string) (*DetectionConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &DetectionConfig{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", strings.TrimPrefix(ext, "."), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the example configuration from DefaultConfigPath.
// It searches the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *DetectionConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/sar/pipeline/
		"../../../../" + DefaultConfigPath, // from internal/sar/storage/sqlite/
	}
	for _, path := range candidates {
		if cfg, err := LoadDetectionConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks field ranges and the combinations between fields.
func (c *DetectionConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (param %q)", fe.Field(), fe.Tag(), fe.Param()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	method := c.GetMethod()
	if c.RatioThreshold != nil && method != MethodRatio {
		return fmt.Errorf("ratio_threshold only applies to method %q, got method %q", MethodRatio, method)
	}
	if c.DifferenceThresholdDB != nil && method != MethodDifference {
		return fmt.Errorf("difference_threshold_db only applies to method %q, got method %q", MethodDifference, method)
	}
	if c.MinSplitLength != nil && method != MethodOmnibus {
		return fmt.Errorf("min_split_length only applies to method %q, got method %q", MethodOmnibus, method)
	}
	return nil
}

// GetSignificanceLevel returns the significance_level value (0 when unset;
// Validate rejects that).
func (c *DetectionConfig) GetSignificanceLevel() float64 {
	if c.SignificanceLevel == nil {
		return 0
	}
	return *c.SignificanceLevel
}

// GetCorrection returns the correction value (empty when unset).
func (c *DetectionConfig) GetCorrection() string {
	if c.Correction == nil {
		return ""
	}
	return *c.Correction
}

// GetMethod returns the method value or the default.
func (c *DetectionConfig) GetMethod() string {
	if c.Method == nil || *c.Method == "" {
		return MethodOmnibus
	}
	return *c.Method
}

// GetMinSplitLength returns the min_split_length value or the default.
func (c *DetectionConfig) GetMinSplitLength() int {
	if c.MinSplitLength == nil {
		return 2
	}
	return *c.MinSplitLength
}

// GetLooksOverride returns the looks_override value, or 0 to use metadata.
func (c *DetectionConfig) GetLooksOverride() float64 {
	if c.LooksOverride == nil {
		return 0
	}
	return *c.LooksOverride
}

// GetRatioThreshold returns the ratio_threshold value or the default.
func (c *DetectionConfig) GetRatioThreshold() float64 {
	if c.RatioThreshold == nil {
		return 1.5
	}
	return *c.RatioThreshold
}

// GetDifferenceThresholdDB returns the difference_threshold_db value or the default.
func (c *DetectionConfig) GetDifferenceThresholdDB() float64 {
	if c.DifferenceThresholdDB == nil {
		return 3.0
	}
	return *c.DifferenceThresholdDB
}

// GetDateMode returns the date_mode value or the default.
func (c *DetectionConfig) GetDateMode() string {
	if c.DateMode == nil || *c.DateMode == "" {
		return DateModeFirst
	}
	return *c.DateMode
}

// GetWorkers returns the workers value, or the CPU count when unset or 0.
func (c *DetectionConfig) GetWorkers() int {
	if c.Workers == nil || *c.Workers == 0 {
		return runtime.NumCPU()
	}
	return *c.Workers
}

// GetTileRows returns the tile_rows value or the default.
func (c *DetectionConfig) GetTileRows() int {
	if c.TileRows == nil {
		return 64
	}
	return *c.TileRows
}
