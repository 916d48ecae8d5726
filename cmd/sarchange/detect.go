package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/banshee-data/sarchange/internal/config"
	"github.com/banshee-data/sarchange/internal/db"
	"github.com/banshee-data/sarchange/internal/monitoring"
	"github.com/banshee-data/sarchange/internal/sar/l5products"
	"github.com/banshee-data/sarchange/internal/sar/pipeline"
	"github.com/banshee-data/sarchange/internal/sar/render"
	"github.com/banshee-data/sarchange/internal/sar/seriesio"
	"github.com/banshee-data/sarchange/internal/sar/storage/sqlite"
)

type detectOptions struct {
	configPath string

	alpha        float64
	correction   string
	method       string
	minSplit     int
	looks        float64
	ratio        float64
	differenceDB float64
	dateMode     string
	workers      int
	tileRows     int

	source      string
	noDB        bool
	out         string
	notableOnly bool
	pngDir      string
	htmlPath    string
	metricsAddr string
}

func newDetectCmd(g *globals) *cobra.Command {
	o := &detectOptions{}
	cmd := &cobra.Command{
		Use:   "detect <series.json|series.msgpack>",
		Short: "Run change detection over an image stack",
		Long: `Detect runs the configured detector over every pixel of a co-registered
image stack, records the run in the database and optionally exports the
products. The significance level and multiple-testing correction have no
defaults: set them in --config or with --alpha and --correction.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetect(cmd, g, o, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "Detection config (.json, .yaml or .yml)")
	f.Float64Var(&o.alpha, "alpha", 0, "Significance level in (0,1)")
	f.StringVar(&o.correction, "correction", "", "Multiple-testing correction: none, bonferroni or fdr")
	f.StringVar(&o.method, "method", "", "Detector: omnibus, ratio or difference")
	f.IntVar(&o.minSplit, "min-split", 0, "Shortest sub-range the change localiser will test")
	f.Float64Var(&o.looks, "looks", 0, "Equivalent number of looks, overriding the series metadata")
	f.Float64Var(&o.ratio, "ratio-threshold", 0, "Ratio method threshold (>1)")
	f.Float64Var(&o.differenceDB, "difference-threshold-db", 0, "Difference method threshold in dB")
	f.StringVar(&o.dateMode, "date-mode", "", "Break reported by the date raster: first or most_significant")
	f.IntVar(&o.workers, "workers", 0, "Tile workers (0 uses every CPU)")
	f.IntVar(&o.tileRows, "tile-rows", 0, "Rows per tile")

	f.StringVar(&o.source, "source", "", "Label stored with the run (defaults to the input path)")
	f.BoolVar(&o.noDB, "no-db", false, "Do not record the run in the database")
	f.StringVarP(&o.out, "out", "o", "", "Export products to this .json or .msgpack file")
	f.BoolVar(&o.notableOnly, "notable-only", false, "Export only changed and invalid pixel records")
	f.StringVar(&o.pngDir, "png", "", "Write one PNG heatmap per raster into this directory")
	f.StringVar(&o.htmlPath, "html", "", "Write an interactive HTML report to this file")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	return cmd
}

// detectionConfig loads --config, if any, and applies the flags the user
// set on top of it.
func (o *detectOptions) detectionConfig(cmd *cobra.Command) (*config.DetectionConfig, error) {
	dc := &config.DetectionConfig{}
	if o.configPath != "" {
		loaded, err := config.LoadDetectionConfig(o.configPath)
		if err != nil {
			return nil, err
		}
		dc = loaded
	}

	f := cmd.Flags()
	if f.Changed("alpha") {
		dc.SignificanceLevel = config.Ptr(o.alpha)
	}
	if f.Changed("correction") {
		dc.Correction = config.Ptr(o.correction)
	}
	if f.Changed("method") {
		dc.Method = config.Ptr(o.method)
	}
	if f.Changed("min-split") {
		dc.MinSplitLength = config.Ptr(o.minSplit)
	}
	if f.Changed("looks") {
		dc.LooksOverride = config.Ptr(o.looks)
	}
	if f.Changed("ratio-threshold") {
		dc.RatioThreshold = config.Ptr(o.ratio)
	}
	if f.Changed("difference-threshold-db") {
		dc.DifferenceThresholdDB = config.Ptr(o.differenceDB)
	}
	if f.Changed("date-mode") {
		dc.DateMode = config.Ptr(o.dateMode)
	}
	if f.Changed("workers") {
		dc.Workers = config.Ptr(o.workers)
	}
	if f.Changed("tile-rows") {
		dc.TileRows = config.Ptr(o.tileRows)
	}

	if err := dc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return dc, nil
}

// detectResult is printed to stdout when a run finishes.
type detectResult struct {
	RunID string `json:"run_id,omitempty"`
	pipeline.RunSummary
}

func runDetect(cmd *cobra.Command, g *globals, o *detectOptions, input string) error {
	ctx := cmd.Context()

	dc, err := o.detectionConfig(cmd)
	if err != nil {
		return err
	}
	cfg, err := pipeline.ConfigFromDetection(dc)
	if err != nil {
		return err
	}

	var metrics *monitoring.Metrics
	if o.metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		metrics = monitoring.NewMetrics(reg)
		shutdown, err := serveMetrics(o.metricsAddr, reg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	opts := []pipeline.Option{pipeline.WithMetrics(metrics)}
	if g.debug {
		opts = append(opts, pipeline.WithProgress(func(done, total int) {
			monitoring.Logf("detected tile %d/%d", done, total)
		}))
	}
	engine, err := pipeline.NewEngine(cfg, opts...)
	if err != nil {
		return err
	}

	series, err := seriesio.ReadFile(input)
	if err != nil {
		return fmt.Errorf("failed to load series %s: %w", input, err)
	}
	monitoring.Logf("loaded %s: %dx%d pixels, %d acquisitions, %d channel(s)",
		input, series.Grid().Width, series.Grid().Height, series.Len(), series.Channels())

	var (
		store *sqlite.RunStore
		run   *sqlite.Run
	)
	if !o.noDB {
		database, err := db.OpenMigrated(g.dbPath)
		if err != nil {
			return err
		}
		defer database.Close()

		cfgJSON, err := json.Marshal(dc)
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		source := o.source
		if source == "" {
			source = input
		}
		store = sqlite.NewRunStore(database.DB)
		run = &sqlite.Run{
			Source:       source,
			Method:       cfg.Method.String(),
			Correction:   cfg.Correction.String(),
			Alpha:        cfg.Alpha,
			Width:        series.Grid().Width,
			Height:       series.Grid().Height,
			Acquisitions: series.Len(),
			ConfigJSON:   cfgJSON,
		}
		if err := store.InsertRun(run); err != nil {
			return err
		}
	}

	products, sum, err := engine.Run(ctx, series)
	if err != nil {
		failRun(store, run, err, sum.Duration)
		return err
	}

	// A run is complete only once every requested output exists.
	if err := writeOutputs(products, outputOptions{
		productsPath: o.out,
		notableOnly:  o.notableOnly,
		pngDir:       o.pngDir,
		htmlPath:     o.htmlPath,
	}); err != nil {
		failRun(store, run, err, sum.Duration)
		return err
	}

	res := detectResult{RunSummary: sum}
	if store != nil {
		if err := store.CompleteRun(run.RunID, sum, products); err != nil {
			failRun(store, run, err, sum.Duration)
			return err
		}
		res.RunID = run.RunID
	}
	return printJSON(cmd, res)
}

// failRun records runErr against run. It is a no-op without a store.
func failRun(store *sqlite.RunStore, run *sqlite.Run, runErr error, d time.Duration) {
	if store == nil {
		return
	}
	if err := store.FailRun(run.RunID, runErr, d); err != nil {
		monitoring.Logf("failed to record failed run %s: %v", run.RunID, err)
	}
}

type outputOptions struct {
	productsPath string
	notableOnly  bool
	pngDir       string
	htmlPath     string
}

// writeOutputs exports products to every destination that is set.
func writeOutputs(p *l5products.Products, o outputOptions) error {
	if o.productsPath != "" {
		if err := seriesio.WriteProducts(o.productsPath, p, o.notableOnly); err != nil {
			return err
		}
		monitoring.Logf("wrote products to %s", o.productsPath)
	}
	if o.pngDir != "" {
		for _, r := range []render.Raster{render.RasterCount, render.RasterChangeIndex, render.RasterMagnitude} {
			path := filepath.Join(o.pngDir, r.String()+".png")
			if err := render.SavePNG(path, p, r, render.PNGOptions{}); err != nil {
				return err
			}
		}
		monitoring.Logf("wrote heatmaps to %s", o.pngDir)
	}
	if o.htmlPath != "" {
		if err := writeFile(o.htmlPath, func(f *os.File) error { return render.WriteHTML(f, p) }); err != nil {
			return err
		}
		monitoring.Logf("wrote report to %s", o.htmlPath)
	}
	return nil
}

// writeFile creates path and its parent directories and hands the file to
// write.
func writeFile(path string, write func(*os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// serveMetrics exposes reg on addr until the returned function is called.
func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			monitoring.Logf("metrics server error: %v", err)
		}
	}()
	monitoring.Logf("serving metrics on http://%s/metrics", ln.Addr())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			monitoring.Logf("metrics server shutdown: %v", err)
		}
	}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
