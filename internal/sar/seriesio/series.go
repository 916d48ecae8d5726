package seriesio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/banshee-data/sarchange/internal/sar/l1series"
	"github.com/banshee-data/sarchange/internal/units"
)

// maxSeriesFileSize caps series files at 2GB.
const maxSeriesFileSize = 2 << 30

// File is the on-disk form of a series. Looks and Scale apply to every
// acquisition. Covariance matrices are split into real and imaginary
// planes with the same layout as l1series.Acquisition.Covariance.
type File struct {
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	Polarizations []string          `json:"polarizations"`
	Looks         float64           `json:"looks,omitempty"`
	Scale         string            `json:"scale,omitempty"`
	Acquisitions  []AcquisitionFile `json:"acquisitions"`
}

// AcquisitionFile is one acquisition of a File.
type AcquisitionFile struct {
	Time         time.Time `json:"time"`
	Intensity    []float64 `json:"intensity,omitempty"`
	CovarianceRe []float64 `json:"covariance_re,omitempty"`
	CovarianceIm []float64 `json:"covariance_im,omitempty"`
}

// Series converts the file to a validated series. Intensities declared on
// the dB scale are converted to linear; covariance files must be linear.
func (f *File) Series() (*l1series.Series, error) {
	if !units.IsValid(f.Scale) && f.Scale != "" {
		return nil, fmt.Errorf("%w: unknown scale %q (valid: %s)",
			l1series.ErrMalformedSeries, f.Scale, units.GetValidScalesString())
	}

	acqs := make([]l1series.Acquisition, len(f.Acquisitions))
	for t, af := range f.Acquisitions {
		a := l1series.Acquisition{
			Time:          af.Time,
			Polarizations: f.Polarizations,
			Looks:         f.Looks,
		}
		switch {
		case af.CovarianceRe != nil:
			if f.Scale == units.DB {
				return nil, fmt.Errorf("%w: acquisition %d: covariance must be on the linear scale",
					l1series.ErrMalformedSeries, t)
			}
			if len(af.CovarianceIm) != len(af.CovarianceRe) {
				return nil, fmt.Errorf("%w: acquisition %d has %d real and %d imaginary covariance values",
					l1series.ErrMalformedSeries, t, len(af.CovarianceRe), len(af.CovarianceIm))
			}
			a.Covariance = make([]complex128, len(af.CovarianceRe))
			for i, re := range af.CovarianceRe {
				a.Covariance[i] = complex(re, af.CovarianceIm[i])
			}
		case af.Intensity != nil:
			a.Intensity = make([]float64, len(af.Intensity))
			for i, v := range af.Intensity {
				// Scale was checked above.
				a.Intensity[i], _ = units.ToLinear(v, f.Scale)
			}
		}
		acqs[t] = a
	}
	return l1series.New(l1series.Grid{Width: f.Width, Height: f.Height}, acqs)
}

// DecodeFile reads a File in the given format.
func DecodeFile(r io.Reader, format Format) (*File, error) {
	f := &File{}
	var err error
	switch format {
	case FormatJSON:
		err = json.NewDecoder(r).Decode(f)
	case FormatMsgPack:
		dec := msgpack.NewDecoder(r)
		dec.SetCustomStructTag("json")
		err = dec.Decode(f)
	default:
		return nil, fmt.Errorf("unknown format %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s series: %w", format, err)
	}
	return f, nil
}

// EncodeFile writes f in the given format.
func EncodeFile(w io.Writer, format Format, f *File) error {
	switch format {
	case FormatJSON:
		return json.NewEncoder(w).Encode(f)
	case FormatMsgPack:
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		return enc.Encode(f)
	default:
		return fmt.Errorf("unknown format %s", format)
	}
}

// Decode reads and validates a series.
func Decode(r io.Reader, format Format) (*l1series.Series, error) {
	f, err := DecodeFile(r, format)
	if err != nil {
		return nil, err
	}
	return f.Series()
}

// ReadFile loads a series from path, picking the format from its extension.
func ReadFile(path string) (*l1series.Series, error) {
	cleanPath := filepath.Clean(path)
	format, err := FormatForPath(cleanPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat series file: %w", err)
	}
	if info.Size() > maxSeriesFileSize {
		return nil, fmt.Errorf("series file too large: %d bytes (max %d)", info.Size(), maxSeriesFileSize)
	}

	fh, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open series file: %w", err)
	}
	defer fh.Close()
	return Decode(fh, format)
}

// WriteFile writes f to path, picking the format from its extension.
func WriteFile(path string, f *File) error {
	format, err := FormatForPath(path)
	if err != nil {
		return err
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create series dir: %w", err)
	}
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create series file: %w", err)
	}
	if err := EncodeFile(fh, format, f); err != nil {
		fh.Close()
		return fmt.Errorf("failed to write series file: %w", err)
	}
	return fh.Close()
}
