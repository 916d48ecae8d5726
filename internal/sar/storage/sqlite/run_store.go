package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sarchange/internal/sar/l5products"
	"github.com/banshee-data/sarchange/internal/sar/pipeline"
	"github.com/banshee-data/sarchange/internal/timeutil"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("change run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning  RunStatus = "running"
	StatusComplete RunStatus = "complete"
	StatusFailed   RunStatus = "failed"
)

// Run is one persisted detection run. Timestamps are unix nanoseconds.
type Run struct {
	RunID          string             `json:"run_id"`
	CreatedAt      int64              `json:"created_at"`
	CompletedAt    int64              `json:"completed_at,omitempty"`
	Status         RunStatus          `json:"status"`
	Source         string             `json:"source,omitempty"`
	Method         string             `json:"method"`
	Family         string             `json:"family,omitempty"`
	Looks          float64            `json:"looks,omitempty"`
	Correction     string             `json:"correction"`
	Alpha          float64            `json:"alpha"`
	EffectiveAlpha float64            `json:"effective_alpha"`
	Width          int                `json:"width"`
	Height         int                `json:"height"`
	Acquisitions   int                `json:"acquisitions"`
	ConfigJSON     json.RawMessage    `json:"config,omitempty"`
	Summary        l5products.Summary `json:"summary"`
	DurationMs     int64              `json:"duration_ms"`
	Error          string             `json:"error,omitempty"`
}

// RunStore provides persistence for change runs and their records.
type RunStore struct {
	db    *sql.DB
	clock timeutil.Clock
}

// StoreOption configures a RunStore.
type StoreOption func(*RunStore)

// WithClock sets the clock used for run timestamps and busy backoff.
func WithClock(c timeutil.Clock) StoreOption {
	return func(s *RunStore) { s.clock = c }
}

// NewRunStore creates a new RunStore over a migrated database.
func NewRunStore(db *sql.DB, opts ...StoreOption) *RunStore {
	s := &RunStore{db: db, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InsertRun records a run as running. If RunID is empty, a UUID is
// generated; CreatedAt defaults to now.
func (s *RunStore) InsertRun(run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = s.clock.Now().UnixNano()
	}
	run.Status = StatusRunning

	return s.retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO change_runs (
				run_id, created_at, status, source, method, correction, alpha,
				width, height, acquisitions, config_json
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.CreatedAt, run.Status, nullStr(run.Source), run.Method, run.Correction, run.Alpha,
			run.Width, run.Height, run.Acquisitions, nullJSON(run.ConfigJSON),
		)
		if err != nil {
			return fmt.Errorf("insert change run: %w", err)
		}
		return nil
	})
}

// CompleteRun stores the outcome of a successful run: its summary, the
// compressed products, and one change record per notable pixel. Everything
// is written in a single transaction.
func (s *RunStore) CompleteRun(runID string, sum pipeline.RunSummary, p *l5products.Products) error {
	blob, err := encodeProducts(p)
	if err != nil {
		return fmt.Errorf("encode products: %w", err)
	}
	counts := p.Summary()

	return s.retryOnBusy(func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		res, err := tx.Exec(`
			UPDATE change_runs SET
				status = ?, completed_at = ?, family = ?, looks = ?, effective_alpha = ?,
				pixels = ?, changed = ?, unchanged = ?, invalid = ?, breaks = ?,
				duration_ms = ?, products_blob = ?
			WHERE run_id = ?`,
			StatusComplete, s.clock.Now().UnixNano(), sum.Family, nullFloat(sum.Looks), sum.EffectiveAlpha,
			counts.Pixels, counts.Changed, counts.Unchanged, counts.Invalid, counts.Breaks,
			sum.Duration.Milliseconds(), blob, runID,
		)
		if err != nil {
			return fmt.Errorf("update change run: %w", err)
		}
		if err := expectOneRow(res, runID); err != nil {
			return err
		}
		if err := insertRecords(tx, runID, p); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// FailRun marks a run failed with the error that stopped it.
func (s *RunStore) FailRun(runID string, runErr error, duration time.Duration) error {
	msg := "unknown error"
	if runErr != nil {
		msg = runErr.Error()
	}
	return s.retryOnBusy(func() error {
		res, err := s.db.Exec(`
			UPDATE change_runs SET status = ?, completed_at = ?, error = ?, duration_ms = ?
			WHERE run_id = ?`,
			StatusFailed, s.clock.Now().UnixNano(), msg, duration.Milliseconds(), runID,
		)
		if err != nil {
			return fmt.Errorf("fail change run: %w", err)
		}
		return expectOneRow(res, runID)
	})
}

const runColumns = `
	run_id, created_at, completed_at, status, source, method, family, looks,
	correction, alpha, effective_alpha, width, height, acquisitions, config_json,
	pixels, changed, unchanged, invalid, breaks, duration_ms, error`

// GetRun returns a single run by ID.
func (s *RunStore) GetRun(runID string) (*Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM change_runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first. A limit of zero or
// less returns every run.
func (s *RunStore) ListRuns(limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM change_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query change runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and, by cascade, its records.
func (s *RunStore) DeleteRun(runID string) error {
	return s.retryOnBusy(func() error {
		res, err := s.db.Exec(`DELETE FROM change_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete change run: %w", err)
		}
		return expectOneRow(res, runID)
	})
}

// LoadProducts decodes the products stored with a completed run.
func (s *RunStore) LoadProducts(runID string) (*l5products.Products, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT products_blob FROM change_runs WHERE run_id = ?`, runID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	if blob == nil {
		return nil, fmt.Errorf("run %s has no stored products", runID)
	}
	return decodeProducts(blob)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		r                                         Run
		completedAt, durationMs                   sql.NullInt64
		pixels, changed, unchanged, invalid, brks sql.NullInt64
		source, family, configJSON, errMsg        sql.NullString
		looks, effectiveAlpha                     sql.NullFloat64
	)
	err := row.Scan(
		&r.RunID, &r.CreatedAt, &completedAt, &r.Status, &source, &r.Method, &family, &looks,
		&r.Correction, &r.Alpha, &effectiveAlpha, &r.Width, &r.Height, &r.Acquisitions, &configJSON,
		&pixels, &changed, &unchanged, &invalid, &brks, &durationMs, &errMsg,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan change run: %w", err)
	}
	r.CompletedAt = completedAt.Int64
	r.DurationMs = durationMs.Int64
	r.Source = source.String
	r.Family = family.String
	r.Error = errMsg.String
	r.Looks = looks.Float64
	r.EffectiveAlpha = effectiveAlpha.Float64
	if configJSON.Valid {
		r.ConfigJSON = json.RawMessage(configJSON.String)
	}
	r.Summary = l5products.Summary{
		Pixels:    int(pixels.Int64),
		Changed:   int(changed.Int64),
		Unchanged: int(unchanged.Int64),
		Invalid:   int(invalid.Int64),
		Breaks:    int(brks.Int64),
	}
	return &r, nil
}

func expectOneRow(res sql.Result, runID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// nullFloat maps NaN and infinities to NULL; SQLite has no REAL for them.
func nullFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
