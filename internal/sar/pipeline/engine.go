package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/sarchange/internal/monitoring"
	"github.com/banshee-data/sarchange/internal/sar/l1series"
	"github.com/banshee-data/sarchange/internal/sar/l2kernel"
	"github.com/banshee-data/sarchange/internal/sar/l3significance"
	"github.com/banshee-data/sarchange/internal/sar/l4omnibus"
	"github.com/banshee-data/sarchange/internal/sar/l5products"
)

// Engine runs detection passes. It is safe for concurrent use; each Run
// owns its own scratch state.
type Engine struct {
	cfg      Config
	metrics  *monitoring.Metrics
	progress func(done, total int)
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records tile and pixel counts on m.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithProgress calls fn after each detection tile finishes. fn may be
// called from several workers at once.
func WithProgress(fn func(done, total int)) Option {
	return func(e *Engine) { e.progress = fn }
}

// NewEngine validates cfg and returns an engine.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid detection config: %w", err)
	}
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// RunSummary describes how a run was carried out. EffectiveAlpha is the
// corrected per-test level; it is 0 for the pairwise methods, which
// threshold a score directly.
type RunSummary struct {
	Method         string             `json:"method"`
	Family         string             `json:"family"`
	Looks          float64            `json:"looks"`
	Correction     string             `json:"correction"`
	Alpha          float64            `json:"alpha"`
	EffectiveAlpha float64            `json:"effective_alpha"`
	Tiles          int                `json:"tiles"`
	Workers        int                `json:"workers"`
	Duration       time.Duration      `json:"duration"`
	Products       l5products.Summary `json:"products"`
}

// tile is a half-open band of rows.
type tile struct{ rowStart, rowEnd int }

func tiles(height, rows int) []tile {
	out := make([]tile, 0, (height+rows-1)/rows)
	for r := 0; r < height; r += rows {
		out = append(out, tile{r, min(r+rows, height)})
	}
	return out
}

// Run detects change over the whole series. Structural and configuration
// faults stop the run before any pixel is processed; per-pixel faults are
// recorded in the products. A cancelled ctx returns its error and no
// products.
func (e *Engine) Run(ctx context.Context, series *l1series.Series) (*l5products.Products, RunSummary, error) {
	start := time.Now()
	sum := RunSummary{
		Method:     e.cfg.Method.String(),
		Correction: e.cfg.Correction.String(),
		Alpha:      e.cfg.Alpha,
		Workers:    e.cfg.workers(),
	}

	products, err := e.run(ctx, series, &sum)
	sum.Duration = time.Since(start)
	result := "ok"
	if err != nil {
		result = "error"
	}
	e.metrics.ObserveRun(sum.Method, result, sum.Duration.Seconds())
	if err != nil {
		monitoring.Logf("sarchange: %s run failed after %s: %v", sum.Method, sum.Duration, err)
		return nil, sum, err
	}

	s := products.Summary()
	sum.Products = s
	e.metrics.PixelOutcomes(s.Changed, s.Unchanged, s.InvalidIntensity, s.NumericDegeneracy, s.Breaks)
	monitoring.Logf("sarchange: %s run over %d pixels in %d tiles (%s, alpha %.3g -> %.3g): %d changed, %d unchanged, %d invalid, %d breaks in %s",
		sum.Method, s.Pixels, sum.Tiles, sum.Correction, sum.Alpha, sum.EffectiveAlpha,
		s.Changed, s.Unchanged, s.Invalid, s.Breaks, sum.Duration)
	return products, sum, nil
}

func (e *Engine) run(ctx context.Context, series *l1series.Series, sum *RunSummary) (*l5products.Products, error) {
	if series == nil {
		return nil, fmt.Errorf("%w: nil series", l1series.ErrMalformedSeries)
	}
	kernel, err := l2kernel.ForSeries(series, e.cfg.LooksOverride)
	if err != nil {
		return nil, err
	}
	sum.Family = kernel.Family().String()
	sum.Looks = kernel.Looks()

	pixels := series.Pixels()
	bands := tiles(series.Grid().Height, e.cfg.tileRows())
	sum.Tiles = len(bands)

	var detector l4omnibus.ChangeDetector
	switch e.cfg.Method {
	case MethodRatio, MethodDifference:
		if kernel.Channels() != 1 {
			return nil, fmt.Errorf("%w: %s method needs single-channel intensity, series has %d channels",
				l1series.ErrMalformedSeries, e.cfg.Method, kernel.Channels())
		}
		if e.cfg.Method == MethodRatio {
			detector, err = l4omnibus.NewRatioDetector(e.cfg.RatioThreshold)
		} else {
			detector, err = l4omnibus.NewDifferenceDetector(e.cfg.DifferenceThresholdDB)
		}
		if err != nil {
			return nil, err
		}

	case MethodOmnibus:
		if err := l3significance.CheckCorrection(e.cfg.Correction, pixels); err != nil {
			return nil, err
		}
		alpha, err := e.effectiveAlpha(ctx, series, kernel, bands)
		if err != nil {
			return nil, err
		}
		sum.EffectiveAlpha = alpha
		table, err := l3significance.NewTable(alpha, kernel.MaxDF(series.Len()))
		if err != nil {
			return nil, err
		}
		detector, err = l4omnibus.NewDetector(table, e.cfg.MinSplit)
		if err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown method %s", e.cfg.Method)
	}

	outcomes := make([]l5products.PixelOutcome, pixels)
	var done atomic.Int64
	err = e.forEachTile(ctx, bands, func(t tile) error {
		for px := t.rowStart * series.Grid().Width; px < t.rowEnd*series.Grid().Width; px++ {
			o, err := detectPixel(series, kernel, detector, px)
			if err != nil {
				return err
			}
			outcomes[px] = o
		}
		e.metrics.TileDone()
		if e.progress != nil {
			e.progress(int(done.Add(1)), len(bands))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return l5products.Assemble(series, outcomes, e.cfg.DateMode)
}

// detectPixel runs one pixel. Per-pixel faults become the outcome's Err;
// only a structural fault (a bug upstream) is returned.
func detectPixel(series *l1series.Series, kernel l2kernel.Kernel, detector l4omnibus.ChangeDetector, px int) (l5products.PixelOutcome, error) {
	c := series.Coord(px)
	prep, err := kernel.Prepare(series.Sample(px))
	if err == nil {
		var res l4omnibus.Result
		if res, err = detector.Detect(prep); err == nil {
			return l5products.PixelOutcome{Result: res}, nil
		}
	}
	if errors.Is(err, l1series.ErrMalformedSeries) {
		return l5products.PixelOutcome{}, fmt.Errorf("pixel (%d,%d): %w", c.Row, c.Col, err)
	}
	return l5products.PixelOutcome{Err: fmt.Errorf("pixel (%d,%d): %w", c.Row, c.Col, err)}, nil
}

// effectiveAlpha applies the configured correction. FDR needs every
// pixel's omnibus p-value, so it runs a first pass over all tiles.
func (e *Engine) effectiveAlpha(ctx context.Context, series *l1series.Series, kernel l2kernel.Kernel, bands []tile) (float64, error) {
	pixels := series.Pixels()
	switch e.cfg.Correction {
	case l3significance.CorrectionNone:
		return e.cfg.Alpha, nil
	case l3significance.CorrectionBonferroni:
		return l3significance.BonferroniAlpha(e.cfg.Alpha, pixels), nil
	case l3significance.CorrectionFDR:
	default:
		return 0, fmt.Errorf("unknown correction %s", e.cfg.Correction)
	}

	n := series.Len()
	pvalues := make([]float64, pixels)
	err := e.forEachTile(ctx, bands, func(t tile) error {
		for px := t.rowStart * series.Grid().Width; px < t.rowEnd*series.Grid().Width; px++ {
			pvalues[px] = math.NaN()
			prep, err := kernel.Prepare(series.Sample(px))
			if err != nil {
				continue
			}
			st, err := prep.Omnibus(0, n)
			if err != nil {
				continue
			}
			pvalues[px] = l3significance.PValue(st.Value, st.DF)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return l3significance.BenjaminiHochbergAlpha(e.cfg.Alpha, pvalues), nil
}

// forEachTile runs fn over bands on a bounded pool. The context is checked
// before each tile starts; a tile in progress always finishes.
func (e *Engine) forEachTile(ctx context.Context, bands []tile, fn func(tile) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.workers())

	for _, t := range bands {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(t)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// Wait can succeed after the scheduling loop stopped early.
	return ctx.Err()
}
