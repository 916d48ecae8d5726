package seriesio

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
	"github.com/banshee-data/sarchange/internal/sar/l5products"
)

// ProductsDocument is the exported form of a detection run. Magnitude
// entries are nil where the raster holds NaN, so JSON exports stay valid.
type ProductsDocument struct {
	Width       int                       `json:"width" msgpack:"width"`
	Height      int                       `json:"height" msgpack:"height"`
	Times       []time.Time               `json:"times" msgpack:"times"`
	DateMode    string                    `json:"date_mode" msgpack:"date_mode"`
	Summary     l5products.Summary        `json:"summary" msgpack:"summary"`
	Count       []int32                   `json:"count" msgpack:"count"`
	ChangeIndex []int32                   `json:"change_index" msgpack:"change_index"`
	Date        []int64                   `json:"date" msgpack:"date"`
	Magnitude   []*float64                `json:"magnitude" msgpack:"magnitude"`
	Records     []l5products.ChangeRecord `json:"records" msgpack:"records"`
}

// NewProductsDocument flattens p. With notableOnly set, Records keeps only
// changed and invalid pixels.
func NewProductsDocument(p *l5products.Products, notableOnly bool) *ProductsDocument {
	doc := &ProductsDocument{
		Width:       p.Grid.Width,
		Height:      p.Grid.Height,
		Times:       p.Times,
		DateMode:    p.Mode.String(),
		Summary:     p.Summary(),
		Count:       p.Count,
		ChangeIndex: p.ChangeIndex,
		Date:        p.Date,
		Magnitude:   make([]*float64, len(p.Magnitude)),
		Records:     p.Records,
	}
	for i, v := range p.Magnitude {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			doc.Magnitude[i] = &v
		}
	}
	if notableOnly {
		doc.Records = p.Notable()
	}
	return doc
}

// Products rebuilds the rasters. Records missing from a notable-only
// export are filled in as unchanged pixels.
func (d *ProductsDocument) Products() (*l5products.Products, error) {
	grid := l1series.Grid{Width: d.Width, Height: d.Height}
	pixels := grid.Pixels()
	for name, n := range map[string]int{
		"count":        len(d.Count),
		"change_index": len(d.ChangeIndex),
		"date":         len(d.Date),
		"magnitude":    len(d.Magnitude),
	} {
		if n != pixels {
			return nil, fmt.Errorf("%s raster has %d values for a %dx%d grid", name, n, d.Width, d.Height)
		}
	}
	mode, err := l5products.ParseDateMode(d.DateMode)
	if err != nil {
		return nil, err
	}

	p := &l5products.Products{
		Grid:        grid,
		Times:       d.Times,
		Mode:        mode,
		Count:       d.Count,
		ChangeIndex: d.ChangeIndex,
		Date:        d.Date,
		Magnitude:   make([]float64, pixels),
		Records:     make([]l5products.ChangeRecord, pixels),
	}
	for i, v := range d.Magnitude {
		p.Magnitude[i] = math.NaN()
		if v != nil {
			p.Magnitude[i] = *v
		}
	}
	for px := range p.Records {
		p.Records[px] = l5products.ChangeRecord{
			Pixel:         l1series.Pixel{Row: px / d.Width, Col: px % d.Width},
			Omnibus:       p.Magnitude[px],
			OmnibusPValue: math.NaN(),
		}
	}
	for _, r := range d.Records {
		if r.Pixel.Row < 0 || r.Pixel.Col < 0 || r.Pixel.Row >= d.Height || r.Pixel.Col >= d.Width {
			return nil, fmt.Errorf("record for pixel (%d,%d) is outside the %dx%d grid",
				r.Pixel.Row, r.Pixel.Col, d.Width, d.Height)
		}
		p.Records[r.Pixel.Row*d.Width+r.Pixel.Col] = r
	}
	return p, nil
}

// EncodeProducts writes doc in the given format.
func EncodeProducts(w io.Writer, format Format, doc *ProductsDocument) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatMsgPack:
		return msgpack.NewEncoder(w).Encode(doc)
	default:
		return fmt.Errorf("unknown format %s", format)
	}
}

// DecodeProducts reads a document written by EncodeProducts.
func DecodeProducts(r io.Reader, format Format) (*ProductsDocument, error) {
	doc := &ProductsDocument{}
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(doc)
	case FormatMsgPack:
		err = msgpack.NewDecoder(r).Decode(doc)
	default:
		return nil, fmt.Errorf("unknown format %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s products: %w", format, err)
	}
	return doc, nil
}

// WriteProducts exports p to path, picking the format from its extension.
func WriteProducts(path string, p *l5products.Products, notableOnly bool) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create products dir: %w", err)
	}
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create products file: %w", err)
	}
	if err := EncodeProducts(fh, format, NewProductsDocument(p, notableOnly)); err != nil {
		fh.Close()
		return fmt.Errorf("failed to write products file: %w", err)
	}
	return fh.Close()
}

// ReadProducts loads products exported by WriteProducts.
func ReadProducts(path string) (*l5products.Products, error) {
	cleanPath := filepath.Clean(path)
	format, err := FormatForPath(cleanPath)
	if err != nil {
		return nil, err
	}
	fh, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open products file: %w", err)
	}
	defer fh.Close()

	doc, err := DecodeProducts(fh, format)
	if err != nil {
		return nil, err
	}
	return doc.Products()
}
