package l4omnibus

import (
	"errors"
	"fmt"
	"slices"

	"github.com/banshee-data/sarchange/internal/sar/l2kernel"
	"github.com/banshee-data/sarchange/internal/sar/l3significance"
)

// DefaultMinSplit is the shortest sub-range that is tested for a break.
const DefaultMinSplit = 2

// Break is one localised change point. The change lies between
// acquisitions Index-1 and Index.
type Break struct {
	Index     int
	Statistic float64 // split statistic at Index
	DF        int
	PValue    float64

	// The range whose omnibus test admitted this split.
	RangeStart     int
	RangeEnd       int
	RangeStatistic float64
	RangeDF        int

	// Ties lists every split index that matched the maximum statistic
	// exactly, ascending. Nil when the maximum was unique.
	Ties []int
}

// Result is the detection outcome for one pixel.
type Result struct {
	Omnibus       l2kernel.Statistic
	OmnibusPValue float64
	Rejected      bool
	Breaks        []Break // ascending by Index, unique
}

// Count returns the number of detected changes.
func (r Result) Count() int { return len(r.Breaks) }

// Indices returns the break indices in ascending order.
func (r Result) Indices() []int {
	out := make([]int, len(r.Breaks))
	for i, b := range r.Breaks {
		out[i] = b.Index
	}
	return out
}

// ChangeDetector is implemented by every detection method.
type ChangeDetector interface {
	Detect(p *l2kernel.Prepared) (Result, error)
}

// Detector is the omnibus test-then-split change detector. It holds only
// read-only configuration and may be shared between goroutines.
type Detector struct {
	table    *l3significance.Table
	minSplit int
}

// NewDetector builds a detector. minSplit below 2 (including 0) selects
// DefaultMinSplit.
func NewDetector(table *l3significance.Table, minSplit int) (*Detector, error) {
	if table == nil {
		return nil, errors.New("significance table is required")
	}
	if minSplit < DefaultMinSplit {
		minSplit = DefaultMinSplit
	}
	return &Detector{table: table, minSplit: minSplit}, nil
}

// MinSplit returns the effective minimum splittable range length.
func (d *Detector) MinSplit() int { return d.minSplit }

type span struct{ start, end int }

// Detect runs the omnibus test on the whole series and localises breaks.
// The full series is always tested; MinSplit applies to the sub-ranges a
// break leaves behind.
func (d *Detector) Detect(p *l2kernel.Prepared) (Result, error) {
	n := p.Len()
	omni, err := p.Omnibus(0, n)
	if err != nil {
		return Result{}, fmt.Errorf("omnibus [0,%d): %w", n, err)
	}
	res := Result{
		Omnibus:       omni,
		OmnibusPValue: l3significance.PValue(omni.Value, omni.DF),
		Rejected:      d.table.Reject(omni.Value, omni.DF),
	}
	if !res.Rejected {
		return res, nil
	}

	b, err := d.localize(p, span{0, n}, omni)
	if err != nil {
		return Result{}, err
	}
	res.Breaks = append(res.Breaks, b)
	stack := []span{{b.Index, n}, {0, b.Index}}

	for len(stack) > 0 {
		r := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.end-r.start < d.minSplit {
			continue
		}

		st, err := p.Omnibus(r.start, r.end)
		if err != nil {
			return Result{}, fmt.Errorf("omnibus [%d,%d): %w", r.start, r.end, err)
		}
		if !d.table.Reject(st.Value, st.DF) {
			continue
		}
		b, err := d.localize(p, r, st)
		if err != nil {
			return Result{}, err
		}
		res.Breaks = append(res.Breaks, b)
		stack = append(stack, span{b.Index, r.end}, span{r.start, b.Index})
	}

	slices.SortFunc(res.Breaks, func(a, b Break) int { return a.Index - b.Index })
	return res, nil
}

// localize finds the split j in (start, end) with the largest statistic.
// Exact ties go to the smallest j.
func (d *Detector) localize(p *l2kernel.Prepared, r span, rangeStat l2kernel.Statistic) (Break, error) {
	b := Break{
		RangeStart:     r.start,
		RangeEnd:       r.end,
		RangeStatistic: rangeStat.Value,
		RangeDF:        rangeStat.DF,
	}

	// A pair has one split and its omnibus test is that split.
	if r.end-r.start == 2 {
		b.Index = r.start + 1
		b.Statistic = rangeStat.Value
		b.DF = rangeStat.DF
		b.PValue = l3significance.PValue(rangeStat.Value, rangeStat.DF)
		return b, nil
	}

	var (
		best l2kernel.Statistic
		ties []int
	)
	for j := r.start + 1; j < r.end; j++ {
		st, err := p.Split(r.start, j, r.end)
		if err != nil {
			return Break{}, fmt.Errorf("split %d of [%d,%d): %w", j, r.start, r.end, err)
		}
		switch {
		case len(ties) == 0 || st.Value > best.Value:
			best = st
			ties = append(ties[:0], j)
		case st.Value == best.Value:
			ties = append(ties, j)
		}
	}

	b.Index = ties[0]
	b.Statistic = best.Value
	b.DF = best.DF
	b.PValue = l3significance.PValue(best.Value, best.DF)
	if len(ties) > 1 {
		b.Ties = ties
	}
	return b, nil
}
