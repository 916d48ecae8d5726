package render

import (
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/sarchange/internal/sar/l5products"
)

// Raster selects a product layer.
type Raster uint8

const (
	RasterCount Raster = iota
	RasterChangeIndex
	RasterMagnitude
)

func (r Raster) String() string {
	switch r {
	case RasterCount:
		return "count"
	case RasterChangeIndex:
		return "change_index"
	case RasterMagnitude:
		return "magnitude"
	default:
		return fmt.Sprintf("raster(%d)", uint8(r))
	}
}

// ParseRaster accepts count, change_index (or index) and magnitude.
func ParseRaster(s string) (Raster, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "count":
		return RasterCount, nil
	case "change_index", "index":
		return RasterChangeIndex, nil
	case "magnitude":
		return RasterMagnitude, nil
	}
	return 0, fmt.Errorf("unknown raster %q (want count, change_index or magnitude)", s)
}

// layer is a product raster as float64 with NaN for invalid pixels.
type layer struct {
	width, height int
	values        []float64
	min, max      float64
}

func newLayer(p *l5products.Products, r Raster) (*layer, error) {
	n := p.Grid.Pixels()
	l := &layer{width: p.Grid.Width, height: p.Grid.Height, values: make([]float64, n)}
	for px := range n {
		var v float64
		switch r {
		case RasterCount:
			v = float64(p.Count[px])
			if p.Count[px] == l5products.InvalidCount {
				v = math.NaN()
			}
		case RasterChangeIndex:
			v = float64(p.ChangeIndex[px])
			if p.ChangeIndex[px] == l5products.InvalidIndex {
				v = math.NaN()
			}
		case RasterMagnitude:
			v = p.Magnitude[px]
		default:
			return nil, fmt.Errorf("unknown raster %s", r)
		}
		l.values[px] = v
	}

	l.min, l.max = math.Inf(1), math.Inf(-1)
	for _, v := range l.values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		l.min = math.Min(l.min, v)
		l.max = math.Max(l.max, v)
	}
	switch {
	case math.IsInf(l.min, 1):
		// Every pixel is invalid.
		l.min, l.max = 0, 1
	case l.max <= l.min:
		l.max = l.min + 1
	}
	return l, nil
}

func (l *layer) at(row, col int) float64 { return l.values[row*l.width+col] }
