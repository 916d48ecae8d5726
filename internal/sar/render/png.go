package render

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/sarchange/internal/sar/l5products"
)

// heatmapGrid adapts a layer to plotter.GridXYZ. Plot rows grow upwards
// while image rows grow downwards, so row r of the plot is image row
// height-1-r and Y carries the negated image row.
type heatmapGrid struct{ *layer }

func (g heatmapGrid) Dims() (c, r int) { return g.width, g.height }
func (g heatmapGrid) X(c int) float64 { return float64(c) }
func (g heatmapGrid) Y(r int) float64 { return float64(r - (g.height - 1)) }
func (g heatmapGrid) Z(c, r int) float64 { return g.at(g.height-1-r, c) }
func (g heatmapGrid) Min() float64 { return g.min }
func (g heatmapGrid) Max() float64 { return g.max }

// rowTicks labels the negated Y axis with image row numbers.
type rowTicks struct{}

func (rowTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i, t := range ticks {
		if t.Label != "" {
			// Adding zero clears the sign of -0.
			ticks[i].Label = strconv.FormatFloat(-t.Value+0, 'f', -1, 64)
		}
	}
	return ticks
}

// PNGOptions sizes a heatmap image.
type PNGOptions struct {
	Width, Height vg.Length
	Title         string
}

func (o PNGOptions) withDefaults(r Raster) PNGOptions {
	if o.Width == 0 {
		o.Width = 8 * vg.Inch
	}
	if o.Height == 0 {
		o.Height = 8 * vg.Inch
	}
	if o.Title == "" {
		o.Title = "Change " + r.String()
	}
	return o
}

// HeatmapPlot builds a gonum plot of one product raster. Invalid pixels
// are drawn in grey.
func HeatmapPlot(p *l5products.Products, r Raster, title string) (*plot.Plot, error) {
	l, err := newLayer(p, r)
	if err != nil {
		return nil, err
	}

	cm := moreland.ExtendedBlackBody()
	cm.SetMin(l.min)
	cm.SetMax(l.max)

	hm := plotter.NewHeatMap(heatmapGrid{l}, cm.Palette(255))
	hm.NaN = color.Gray{Y: 128}

	pl := plot.New()
	pl.Title.Text = title
	pl.X.Label.Text = "column"
	pl.Y.Label.Text = "row"
	pl.Y.Tick.Marker = rowTicks{}
	pl.Add(hm)
	return pl, nil
}

// WritePNG renders one raster as a PNG heatmap to w.
func WritePNG(w io.Writer, p *l5products.Products, r Raster, o PNGOptions) error {
	o = o.withDefaults(r)
	pl, err := HeatmapPlot(p, r, o.Title)
	if err != nil {
		return err
	}
	wt, err := pl.WriterTo(o.Width, o.Height, "png")
	if err != nil {
		return fmt.Errorf("failed to render %s heatmap: %w", r, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG writes one raster heatmap to path, creating parent directories.
func SavePNG(path string, p *l5products.Products, r Raster, o PNGOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	o = o.withDefaults(r)
	pl, err := HeatmapPlot(p, r, o.Title)
	if err != nil {
		return err
	}
	if err := pl.Save(o.Width, o.Height, path); err != nil {
		return fmt.Errorf("failed to save %s heatmap: %w", r, err)
	}
	return nil
}
