package render

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
	"github.com/banshee-data/sarchange/internal/sar/l5products"
	"github.com/banshee-data/sarchange/internal/units"
)

// viridis is the visual-map ramp shared by every chart.
var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// HeatmapChart builds an interactive heatmap of one raster. Invalid pixels
// are left empty.
func HeatmapChart(p *l5products.Products, r Raster, title string) (*charts.HeatMap, error) {
	l, err := newLayer(p, r)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = "Change " + r.String()
	}

	cols := make([]string, l.width)
	for c := range cols {
		cols[c] = strconv.Itoa(c)
	}
	// Category axes grow upwards; list rows bottom first so row 0 is on top.
	rows := make([]string, l.height)
	for i := range rows {
		rows[i] = strconv.Itoa(l.height - 1 - i)
	}

	data := make([]opts.HeatMapData, 0, len(l.values))
	for row := range l.height {
		for col := range l.width {
			var v any = l.at(row, col)
			if math.IsNaN(l.at(row, col)) {
				v = "-"
			}
			data = append(data, opts.HeatMapData{Value: [3]any{col, l.height - 1 - row, v}})
		}
	}

	s := p.Summary()
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%dx%d pixels, %d changed, %d invalid", l.width, l.height, s.Changed, s.Invalid),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "column", Data: cols}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: "row", Data: rows}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(l.min),
			Max:        float32(l.max),
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	hm.SetXAxis(cols).AddSeries(r.String(), data)
	return hm, nil
}

// SeriesChart plots one pixel's intensity in dB with its detected breaks
// marked. Multi-channel series plot the diagonal of each covariance
// matrix, one line per polarisation.
func SeriesChart(series *l1series.Series, rec l5products.ChangeRecord) *charts.Line {
	n := series.Len()
	times := series.Times()
	x := make([]string, n)
	for t, ts := range times {
		x[t] = ts.UTC().Format(time.DateOnly)
	}

	sample := series.Sample(series.Index(rec.Pixel.Row, rec.Pixel.Col))
	pols := series.Acquisition(0).Polarizations
	if len(pols) == 0 {
		pols = []string{"intensity"}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Pixel series", Theme: "dark", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Pixel (%d,%d)", rec.Pixel.Row, rec.Pixel.Col),
			Subtitle: recordSubtitle(rec),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "dB"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	line.SetXAxis(x)

	for ch, pol := range pols {
		y := make([]opts.LineData, n)
		for t := range n {
			var v float64
			if sample.Channels == 1 {
				v = sample.Intensity[t]
			} else {
				v = real(sample.Matrix(t)[ch*sample.Channels+ch])
			}
			y[t] = opts.LineData{Value: units.LinearToDB(v)}
		}
		var seriesOpts []charts.SeriesOpts
		if ch == 0 && len(rec.Changes) > 0 {
			marks := make([]opts.MarkLineNameXAxisItem, len(rec.Changes))
			for i, c := range rec.Changes {
				marks[i] = opts.MarkLineNameXAxisItem{Name: fmt.Sprintf("break %d", c.Index), XAxis: x[c.Index]}
			}
			seriesOpts = append(seriesOpts, charts.WithMarkLineNameXAxisItemOpts(marks...))
		}
		line.AddSeries(pol, y, seriesOpts...)
	}
	return line
}

func recordSubtitle(rec l5products.ChangeRecord) string {
	if !rec.Valid() {
		return "invalid: " + rec.Fault.String()
	}
	return fmt.Sprintf("%d changes, omnibus %.3g (df %d, p %.3g)", rec.Count, rec.Omnibus, rec.OmnibusDF, rec.OmnibusPValue)
}

// WriteHTML renders the count, date-index and magnitude heatmaps as one
// page.
func WriteHTML(w io.Writer, p *l5products.Products) error {
	page := components.NewPage()
	page.PageTitle = "Change detection"
	for _, r := range []Raster{RasterCount, RasterChangeIndex, RasterMagnitude} {
		hm, err := HeatmapChart(p, r, "")
		if err != nil {
			return err
		}
		page.AddCharts(hm)
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render chart page: %w", err)
	}
	return nil
}

// WriteSeriesHTML renders SeriesChart for one pixel.
func WriteSeriesHTML(w io.Writer, series *l1series.Series, rec l5products.ChangeRecord) error {
	if err := SeriesChart(series, rec).Render(w); err != nil {
		return fmt.Errorf("failed to render series chart: %w", err)
	}
	return nil
}
