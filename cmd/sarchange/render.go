package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarchange/internal/monitoring"
	"github.com/banshee-data/sarchange/internal/sar/render"
	"github.com/banshee-data/sarchange/internal/sar/seriesio"
)

func newRenderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Draw exported products",
	}
	cmd.AddCommand(newRenderHeatmapCmd(), newRenderPixelCmd())
	return cmd
}

func newRenderHeatmapCmd() *cobra.Command {
	var (
		productsPath string
		raster       string
		pngPath      string
		htmlPath     string
		title        string
	)
	cmd := &cobra.Command{
		Use:   "heatmap",
		Short: "Render one product raster as a PNG or HTML heatmap",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pngPath == "" && htmlPath == "" {
				return fmt.Errorf("nothing to render: set --png or --html")
			}
			r, err := render.ParseRaster(raster)
			if err != nil {
				return err
			}
			p, err := seriesio.ReadProducts(productsPath)
			if err != nil {
				return err
			}

			if pngPath != "" {
				if err := render.SavePNG(pngPath, p, r, render.PNGOptions{Title: title}); err != nil {
					return err
				}
				monitoring.Logf("wrote %s heatmap to %s", r, pngPath)
			}
			if htmlPath != "" {
				hm, err := render.HeatmapChart(p, r, title)
				if err != nil {
					return err
				}
				if err := writeFile(htmlPath, func(f *os.File) error { return hm.Render(f) }); err != nil {
					return err
				}
				monitoring.Logf("wrote %s heatmap to %s", r, htmlPath)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&productsPath, "products", "p", "", "Products file written by detect --out")
	f.StringVarP(&raster, "raster", "r", "count", "Raster: count, change_index or magnitude")
	f.StringVar(&pngPath, "png", "", "PNG output path")
	f.StringVar(&htmlPath, "html", "", "HTML output path")
	f.StringVar(&title, "title", "", "Chart title")
	_ = cmd.MarkFlagRequired("products")
	return cmd
}

func newRenderPixelCmd() *cobra.Command {
	var (
		seriesPath   string
		productsPath string
		row, col     int
		out          string
	)
	cmd := &cobra.Command{
		Use:   "pixel",
		Short: "Plot one pixel's series with its detected breaks as HTML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			series, err := seriesio.ReadFile(seriesPath)
			if err != nil {
				return err
			}
			p, err := seriesio.ReadProducts(productsPath)
			if err != nil {
				return err
			}
			if p.Grid != series.Grid() {
				return fmt.Errorf("products grid %dx%d does not match series grid %dx%d",
					p.Grid.Width, p.Grid.Height, series.Grid().Width, series.Grid().Height)
			}
			rec, ok := p.Record(row, col)
			if !ok {
				return fmt.Errorf("pixel (%d,%d) is outside the %dx%d grid", row, col, p.Grid.Width, p.Grid.Height)
			}
			if err := writeFile(out, func(f *os.File) error { return render.WriteSeriesHTML(f, series, rec) }); err != nil {
				return err
			}
			monitoring.Logf("wrote pixel (%d,%d) chart to %s", row, col, out)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&seriesPath, "series", "s", "", "Series file the products were computed from")
	f.StringVarP(&productsPath, "products", "p", "", "Products file written by detect --out")
	f.IntVar(&row, "row", 0, "Pixel row")
	f.IntVar(&col, "col", 0, "Pixel column")
	f.StringVarP(&out, "out", "o", "pixel.html", "HTML output path")
	_ = cmd.MarkFlagRequired("series")
	_ = cmd.MarkFlagRequired("products")
	return cmd
}
