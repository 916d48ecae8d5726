package l5products

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
	"github.com/banshee-data/sarchange/internal/sar/l4omnibus"
)

// Raster sentinels for pixels whose samples failed validation.
const (
	InvalidCount int32 = -1
	InvalidIndex int32 = -1
	InvalidDate  int64 = math.MinInt64
)

// DateMode selects which break the date raster reports.
type DateMode uint8

const (
	DateFirst           DateMode = iota // earliest break
	DateMostSignificant                 // largest split statistic, earliest on ties
)

func (m DateMode) String() string {
	switch m {
	case DateFirst:
		return "first"
	case DateMostSignificant:
		return "most_significant"
	default:
		return fmt.Sprintf("date_mode(%d)", uint8(m))
	}
}

// ParseDateMode accepts "first" (or empty) and "most_significant".
func ParseDateMode(s string) (DateMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first":
		return DateFirst, nil
	case "most_significant", "most-significant":
		return DateMostSignificant, nil
	}
	return 0, fmt.Errorf("unknown date mode %q (want first or most_significant)", s)
}

// PixelOutcome is what a tile worker produces for one pixel: a detection
// result, or the per-pixel error that stopped it.
type PixelOutcome struct {
	Result l4omnibus.Result
	Err    error
}

// Change is one detected break in a record.
type Change struct {
	Index      int       `msgpack:"index"`
	Time       time.Time `msgpack:"time"`
	Statistic  float64   `msgpack:"statistic"`
	DF         int       `msgpack:"df"`
	PValue     float64   `msgpack:"p_value"`
	RangeStart int       `msgpack:"range_start"`
	RangeEnd   int       `msgpack:"range_end"`
	Ties       []int     `msgpack:"ties,omitempty"`
}

// ChangeRecord is the per-pixel result. JSON encodes NaN statistics as
// null and Fault by name; see json.go.
type ChangeRecord struct {
	Pixel         l1series.Pixel `msgpack:"pixel"`
	Count         int            `msgpack:"count"`
	Changes       []Change       `msgpack:"changes,omitempty"`
	Omnibus       float64        `msgpack:"omnibus"`
	OmnibusDF     int            `msgpack:"omnibus_df"`
	OmnibusPValue float64        `msgpack:"omnibus_p_value"`
	Fault         l1series.Fault `msgpack:"fault"`
	Detail        string         `msgpack:"detail,omitempty"`
}

// Valid reports whether the pixel completed detection.
func (r ChangeRecord) Valid() bool { return r.Fault == l1series.FaultNone }

// Products are the grid-aligned outputs of one detection run.
// They are read-only once assembled.
type Products struct {
	Grid  l1series.Grid
	Times []time.Time
	Mode  DateMode

	Count       []int32   // changes per pixel; InvalidCount for faults
	ChangeIndex []int32   // acquisition index of the dated break; 0 none
	Date        []int64   // unix seconds of the dated break; 0 none
	Magnitude   []float64 // omnibus statistic; NaN for faults
	Records     []ChangeRecord
}

// Summary counts pixels by outcome.
type Summary struct {
	Pixels            int `json:"pixels"`
	Changed           int `json:"changed"`
	Unchanged         int `json:"unchanged"`
	Invalid           int `json:"invalid"`
	InvalidIntensity  int `json:"invalid_intensity"`
	NumericDegeneracy int `json:"numeric_degeneracy"`
	Breaks            int `json:"breaks"`
}

// Assemble builds products from one outcome per pixel (row-major).
func Assemble(series *l1series.Series, outcomes []PixelOutcome, mode DateMode) (*Products, error) {
	pixels := series.Pixels()
	if len(outcomes) != pixels {
		return nil, fmt.Errorf("%d outcomes for a %dx%d grid", len(outcomes), series.Grid().Width, series.Grid().Height)
	}
	times := series.Times()

	p := &Products{
		Grid:        series.Grid(),
		Times:       times,
		Mode:        mode,
		Count:       make([]int32, pixels),
		ChangeIndex: make([]int32, pixels),
		Date:        make([]int64, pixels),
		Magnitude:   make([]float64, pixels),
		Records:     make([]ChangeRecord, pixels),
	}

	for px, o := range outcomes {
		rec := ChangeRecord{Pixel: series.Coord(px)}

		if o.Err != nil {
			rec.Fault = l1series.FaultOf(o.Err)
			rec.Detail = o.Err.Error()
			rec.Omnibus = math.NaN()
			rec.OmnibusPValue = math.NaN()
			p.Count[px] = InvalidCount
			p.ChangeIndex[px] = InvalidIndex
			p.Date[px] = InvalidDate
			p.Magnitude[px] = math.NaN()
			p.Records[px] = rec
			continue
		}

		res := o.Result
		rec.Count = res.Count()
		rec.Omnibus = res.Omnibus.Value
		rec.OmnibusDF = res.Omnibus.DF
		rec.OmnibusPValue = res.OmnibusPValue
		if len(res.Breaks) > 0 {
			rec.Changes = make([]Change, len(res.Breaks))
			for i, b := range res.Breaks {
				rec.Changes[i] = Change{
					Index:      b.Index,
					Time:       times[b.Index],
					Statistic:  b.Statistic,
					DF:         b.DF,
					PValue:     b.PValue,
					RangeStart: b.RangeStart,
					RangeEnd:   b.RangeEnd,
					Ties:       b.Ties,
				}
			}
			dated := rec.Changes[datedBreak(rec.Changes, mode)]
			p.ChangeIndex[px] = int32(dated.Index)
			p.Date[px] = dated.Time.Unix()
		}
		p.Count[px] = int32(rec.Count)
		p.Magnitude[px] = rec.Omnibus
		p.Records[px] = rec
	}
	return p, nil
}

// datedBreak picks the change the date raster reports. Changes are
// ascending by index, so a strict comparison keeps the earliest on ties.
func datedBreak(changes []Change, mode DateMode) int {
	if mode != DateMostSignificant {
		return 0
	}
	best := 0
	for i := 1; i < len(changes); i++ {
		if changes[i].Statistic > changes[best].Statistic {
			best = i
		}
	}
	return best
}

// Record returns the change record at (row, col).
func (p *Products) Record(row, col int) (ChangeRecord, bool) {
	if row < 0 || col < 0 || row >= p.Grid.Height || col >= p.Grid.Width {
		return ChangeRecord{}, false
	}
	return p.Records[row*p.Grid.Width+col], true
}

// Notable returns the records of changed or invalid pixels, in pixel order.
func (p *Products) Notable() []ChangeRecord {
	var out []ChangeRecord
	for _, r := range p.Records {
		if r.Count > 0 || !r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// Summary counts pixels by outcome.
func (p *Products) Summary() Summary {
	s := Summary{Pixels: len(p.Records)}
	for _, r := range p.Records {
		switch {
		case r.Fault == l1series.FaultInvalidIntensity:
			s.Invalid++
			s.InvalidIntensity++
		case r.Fault == l1series.FaultNumericDegeneracy:
			s.Invalid++
			s.NumericDegeneracy++
		case r.Count > 0:
			s.Changed++
			s.Breaks += r.Count
		default:
			s.Unchanged++
		}
	}
	return s
}
