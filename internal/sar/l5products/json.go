package l5products

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
)

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

type changeJSON struct {
	Index      int       `json:"index"`
	Time       time.Time `json:"time"`
	Statistic  *float64  `json:"statistic"`
	DF         int       `json:"df"`
	PValue     *float64  `json:"p_value"`
	RangeStart int       `json:"range_start"`
	RangeEnd   int       `json:"range_end"`
	Ties       []int     `json:"ties,omitempty"`
}

func (c Change) MarshalJSON() ([]byte, error) {
	return json.Marshal(changeJSON{
		Index:      c.Index,
		Time:       c.Time,
		Statistic:  nullable(c.Statistic),
		DF:         c.DF,
		PValue:     nullable(c.PValue),
		RangeStart: c.RangeStart,
		RangeEnd:   c.RangeEnd,
		Ties:       c.Ties,
	})
}

func (c *Change) UnmarshalJSON(b []byte) error {
	var v changeJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*c = Change{
		Index:      v.Index,
		Time:       v.Time,
		Statistic:  orNaN(v.Statistic),
		DF:         v.DF,
		PValue:     orNaN(v.PValue),
		RangeStart: v.RangeStart,
		RangeEnd:   v.RangeEnd,
		Ties:       v.Ties,
	}
	return nil
}

type recordJSON struct {
	Pixel         l1series.Pixel `json:"pixel"`
	Count         int            `json:"count"`
	Changes       []Change       `json:"changes,omitempty"`
	Omnibus       *float64       `json:"omnibus"`
	OmnibusDF     int            `json:"omnibus_df"`
	OmnibusPValue *float64       `json:"omnibus_p_value"`
	Fault         string         `json:"fault,omitempty"`
	Detail        string         `json:"detail,omitempty"`
}

func (r ChangeRecord) MarshalJSON() ([]byte, error) {
	v := recordJSON{
		Pixel:         r.Pixel,
		Count:         r.Count,
		Changes:       r.Changes,
		Omnibus:       nullable(r.Omnibus),
		OmnibusDF:     r.OmnibusDF,
		OmnibusPValue: nullable(r.OmnibusPValue),
		Detail:        r.Detail,
	}
	if r.Fault != l1series.FaultNone {
		v.Fault = r.Fault.String()
	}
	return json.Marshal(v)
}

func (r *ChangeRecord) UnmarshalJSON(b []byte) error {
	var v recordJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	fault, ok := l1series.ParseFault(v.Fault)
	if !ok {
		return fmt.Errorf("unknown fault %q", v.Fault)
	}
	*r = ChangeRecord{
		Pixel:         v.Pixel,
		Count:         v.Count,
		Changes:       v.Changes,
		Omnibus:       orNaN(v.Omnibus),
		OmnibusDF:     v.OmnibusDF,
		OmnibusPValue: orNaN(v.OmnibusPValue),
		Fault:         fault,
		Detail:        v.Detail,
	}
	return nil
}
