package pipeline

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/banshee-data/sarchange/internal/config"
	"github.com/banshee-data/sarchange/internal/sar/l3significance"
	"github.com/banshee-data/sarchange/internal/sar/l4omnibus"
	"github.com/banshee-data/sarchange/internal/sar/l5products"
)

// Method selects the per-pixel detector.
type Method uint8

const (
	MethodOmnibus Method = iota
	MethodRatio
	MethodDifference
)

func (m Method) String() string {
	switch m {
	case MethodOmnibus:
		return config.MethodOmnibus
	case MethodRatio:
		return config.MethodRatio
	case MethodDifference:
		return config.MethodDifference
	default:
		return fmt.Sprintf("method(%d)", uint8(m))
	}
}

// ParseMethod accepts omnibus (or empty), ratio and difference.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", config.MethodOmnibus:
		return MethodOmnibus, nil
	case config.MethodRatio:
		return MethodRatio, nil
	case config.MethodDifference:
		return MethodDifference, nil
	}
	return 0, fmt.Errorf("unknown method %q (want omnibus, ratio or difference)", s)
}

// DefaultTileRows is the row-band height used when none is configured.
const DefaultTileRows = 64

// Config is the resolved, typed form of a detection configuration.
type Config struct {
	Alpha         float64
	Correction    l3significance.Correction
	Method        Method
	MinSplit      int
	LooksOverride float64
	DateMode      l5products.DateMode

	RatioThreshold        float64
	DifferenceThresholdDB float64

	Workers  int // 0 means runtime.NumCPU()
	TileRows int // 0 means DefaultTileRows
}

// ConfigFromDetection validates a loaded configuration and resolves it.
func ConfigFromDetection(dc *config.DetectionConfig) (Config, error) {
	if err := dc.Validate(); err != nil {
		return Config{}, err
	}
	corr, err := l3significance.ParseCorrection(dc.GetCorrection())
	if err != nil {
		return Config{}, err
	}
	method, err := ParseMethod(dc.GetMethod())
	if err != nil {
		return Config{}, err
	}
	mode, err := l5products.ParseDateMode(dc.GetDateMode())
	if err != nil {
		return Config{}, err
	}
	return Config{
		Alpha:                 dc.GetSignificanceLevel(),
		Correction:            corr,
		Method:                method,
		MinSplit:              dc.GetMinSplitLength(),
		LooksOverride:         dc.GetLooksOverride(),
		DateMode:              mode,
		RatioThreshold:        dc.GetRatioThreshold(),
		DifferenceThresholdDB: dc.GetDifferenceThresholdDB(),
		Workers:               dc.GetWorkers(),
		TileRows:              dc.GetTileRows(),
	}, nil
}

func (c Config) validate() error {
	if err := l3significance.ValidateAlpha(c.Alpha); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.TileRows < 0 {
		return fmt.Errorf("tile_rows must be non-negative, got %d", c.TileRows)
	}
	if c.MinSplit != 0 && c.MinSplit < l4omnibus.DefaultMinSplit {
		return fmt.Errorf("min_split_length must be at least %d, got %d", l4omnibus.DefaultMinSplit, c.MinSplit)
	}
	if c.LooksOverride < 0 {
		return fmt.Errorf("looks_override must be positive, got %g", c.LooksOverride)
	}
	return nil
}

func (c Config) workers() int {
	if c.Workers == 0 {
		return runtime.NumCPU()
	}
	return c.Workers
}

func (c Config) tileRows() int {
	if c.TileRows == 0 {
		return DefaultTileRows
	}
	return c.TileRows
}
