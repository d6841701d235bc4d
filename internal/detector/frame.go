// Package detector reads the numeric payload of detector files: 2-D images
// from FITS and legacy .map files, and 1-D pulse height distributions from
// .phd text files.
//
// Only what the analysis needs is decoded: the primary array and its header
// cards. Extensions, tables and WCS keywords are ignored.
package detector

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnsupportedFormat is returned for file types with no reader.
	ErrUnsupportedFormat = errors.New("unsupported detector file format")
	// ErrNoData is returned when a file holds no array.
	ErrNoData = errors.New("no data array")
	// ErrTruncated is returned when a file ends before its declared data.
	ErrTruncated = errors.New("truncated data")
)

// Header holds header cards keyed by upper-case keyword.
type Header map[string]string

// Float returns the numeric value of key.
func (h Header) Float(key string) (float64, bool) {
	s, ok := h[strings.ToUpper(key)]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Histogram is a pulse height distribution: Counts[i] events in Bins[i].
type Histogram struct {
	Bins   []float64
	Counts []float64
}

// Len returns the number of bins.
func (h *Histogram) Len() int { return len(h.Bins) }

// Frame is one loaded detector file. Exactly one of Image and Histogram is
// set.
type Frame struct {
	Image     *mat.Dense
	Histogram *Histogram
	Header    Header
}

// IsImage reports whether the frame holds a 2-D image.
func (f *Frame) IsImage() bool { return f != nil && f.Image != nil }

// IsHistogram reports whether the frame holds a pulse height distribution.
func (f *Frame) IsHistogram() bool { return f != nil && f.Histogram != nil }

// Values returns the frame's samples: image pixels in row-major order, or
// histogram counts. The slice aliases the frame and must not be modified.
func (f *Frame) Values() []float64 {
	switch {
	case f == nil:
		return nil
	case f.Image != nil:
		raw := f.Image.RawMatrix()
		if raw.Stride == raw.Cols {
			return raw.Data[:raw.Rows*raw.Cols]
		}
		out := make([]float64, 0, raw.Rows*raw.Cols)
		for i := 0; i < raw.Rows; i++ {
			out = append(out, raw.Data[i*raw.Stride:i*raw.Stride+raw.Cols]...)
		}
		return out
	case f.Histogram != nil:
		return f.Histogram.Counts
	}
	return nil
}

// NonZero counts finite, non-zero samples.
func (f *Frame) NonZero() int {
	n := 0
	for _, v := range f.Values() {
		if v != 0 && !math.IsNaN(v) && !math.IsInf(v, 0) {
			n++
		}
	}
	return n
}
