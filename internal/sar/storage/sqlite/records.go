package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
	"github.com/banshee-data/sarchange/internal/sar/l5products"
)

// insertRecords writes one row per changed or invalid pixel of p.
func insertRecords(tx *sql.Tx, runID string, p *l5products.Products) error {
	stmt, err := tx.Prepare(`
		INSERT INTO change_records (
			run_id, pixel_row, pixel_col, change_count, change_index, change_time,
			omnibus, omnibus_df, omnibus_p_value, fault, detail, changes_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare change record insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range p.Notable() {
		px := rec.Pixel.Row*p.Grid.Width + rec.Pixel.Col

		var changeIndex, changeTime, changesJSON any
		if rec.Count > 0 {
			changeIndex = p.ChangeIndex[px]
			changeTime = p.Date[px]
			b, err := json.Marshal(rec.Changes)
			if err != nil {
				return fmt.Errorf("encode changes for pixel (%d,%d): %w", rec.Pixel.Row, rec.Pixel.Col, err)
			}
			changesJSON = string(b)
		}

		if _, err := stmt.Exec(
			runID, rec.Pixel.Row, rec.Pixel.Col, rec.Count, changeIndex, changeTime,
			nullFloat(rec.Omnibus), rec.OmnibusDF, nullFloat(rec.OmnibusPValue),
			rec.Fault.String(), nullStr(rec.Detail), changesJSON,
		); err != nil {
			return fmt.Errorf("insert change record (%d,%d): %w", rec.Pixel.Row, rec.Pixel.Col, err)
		}
	}
	return nil
}

// ErrInvalidFilter is returned by ListRecords for a filter it cannot apply.
var ErrInvalidFilter = errors.New("invalid record filter")

// RecordFilter narrows ListRecords. The zero value returns every stored
// record of the run.
type RecordFilter struct {
	Fault       string // only records with this fault name
	ChangedOnly bool   // only valid pixels with at least one change
	Limit       int    // 0 means no limit
}

// StoredRecord is a change record with the dated-break columns of its run.
// ChangeTime is in unix seconds; both are zero for invalid pixels.
type StoredRecord struct {
	l5products.ChangeRecord
	ChangeIndex int
	ChangeTime  int64
}

// MarshalJSON nests the record so that its own JSON encoding, which would
// otherwise be promoted, does not hide the dated-break fields.
func (r StoredRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ChangeIndex int                     `json:"change_index"`
		ChangeTime  int64                   `json:"change_time"`
		Record      l5products.ChangeRecord `json:"record"`
	}{r.ChangeIndex, r.ChangeTime, r.ChangeRecord})
}

// ListRecords returns the stored records of a run in pixel order.
func (s *RunStore) ListRecords(runID string, f RecordFilter) ([]StoredRecord, error) {
	var (
		where = []string{"run_id = ?"}
		args  = []any{runID}
	)
	if f.Fault != "" {
		if _, ok := l1series.ParseFault(f.Fault); !ok {
			return nil, fmt.Errorf("%w: unknown fault %q", ErrInvalidFilter, f.Fault)
		}
		where = append(where, "fault = ?")
		args = append(args, f.Fault)
	}
	if f.ChangedOnly {
		where = append(where, "fault = 'none'", "change_count > 0")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := s.db.Query(`
		SELECT pixel_row, pixel_col, change_count, change_index, change_time,
		       omnibus, omnibus_df, omnibus_p_value, fault, detail, changes_json
		FROM change_records
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY pixel_row, pixel_col
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query change records: %w", err)
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			r                     StoredRecord
			changeIndex, changeTS sql.NullInt64
			omnibus, pvalue       sql.NullFloat64
			fault                 string
			detail, changes       sql.NullString
		)
		if err := rows.Scan(
			&r.Pixel.Row, &r.Pixel.Col, &r.Count, &changeIndex, &changeTS,
			&omnibus, &r.OmnibusDF, &pvalue, &fault, &detail, &changes,
		); err != nil {
			return nil, fmt.Errorf("scan change record: %w", err)
		}
		r.ChangeIndex = int(changeIndex.Int64)
		r.ChangeTime = changeTS.Int64
		r.Omnibus = orNaN(omnibus)
		r.OmnibusPValue = orNaN(pvalue)
		r.Detail = detail.String
		var ok bool
		if r.Fault, ok = l1series.ParseFault(fault); !ok {
			return nil, fmt.Errorf("pixel (%d,%d) has unknown fault %q", r.Pixel.Row, r.Pixel.Col, fault)
		}
		if changes.Valid {
			if err := json.Unmarshal([]byte(changes.String), &r.Changes); err != nil {
				return nil, fmt.Errorf("decode changes for pixel (%d,%d): %w", r.Pixel.Row, r.Pixel.Col, err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func orNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
