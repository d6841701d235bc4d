package detector

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
	"gonum.org/v1/gonum/mat"
)

const (
	blockSize = 2880
	cardSize  = 80
)

// DecodeFITS reads the primary HDU of a FITS file into an image frame.
// BSCALE and BZERO are applied to the stored samples.
func DecodeFITS(data []byte) (*Frame, error) {
	if len(data) < blockSize {
		return nil, fmt.Errorf("fits: %d bytes is less than one block: %w", len(data), ErrTruncated)
	}
	f, err := fitsio.Open(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("fits: %v: %w", err, ErrTruncated)
		}
		return nil, fmt.Errorf("fits: %w", err)
	}
	defer f.Close()

	if len(f.HDUs()) == 0 {
		return nil, ErrNoData
	}
	img, ok := f.HDU(0).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("fits: primary HDU is not an image: %w", ErrUnsupportedFormat)
	}
	fh := img.Header()
	hdr := headerOf(fh)

	axes := fh.Axes()
	switch {
	case len(axes) == 0:
		return nil, ErrNoData
	case len(axes) > 2:
		return nil, fmt.Errorf("fits: NAXIS=%d: %w", len(axes), ErrUnsupportedFormat)
	}
	cols, rows := axes[0], 1
	if len(axes) == 2 {
		rows = axes[1]
	}
	if rows <= 0 || cols <= 0 {
		return nil, ErrNoData
	}

	pixels, err := readPixels(img, fh.Bitpix(), rows*cols)
	if err != nil {
		return nil, err
	}

	scale, zero := 1.0, 0.0
	if v, ok := hdr.Float("BSCALE"); ok {
		scale = v
	}
	if v, ok := hdr.Float("BZERO"); ok {
		zero = v
	}
	if scale != 1 || zero != 0 {
		for i, v := range pixels {
			pixels[i] = zero + scale*v
		}
	}

	return &Frame{Image: mat.NewDense(rows, cols, pixels), Header: hdr}, nil
}

// readPixels reads n samples of the HDU's BITPIX as float64.
func readPixels(img fitsio.Image, bitpix, n int) ([]float64, error) {
	width := bitpix / 8
	if width < 0 {
		width = -width
	}
	if need := n * width; len(img.Raw()) < need {
		return nil, fmt.Errorf("fits: need %d bytes, have %d: %w", need, len(img.Raw()), ErrTruncated)
	}
	out := make([]float64, n)
	switch bitpix {
	case 8:
		buf := make([]uint8, n)
		if err := img.Read(&buf); err != nil {
			return nil, fmt.Errorf("fits: read pixels: %w", err)
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case 16:
		buf := make([]int16, n)
		if err := img.Read(&buf); err != nil {
			return nil, fmt.Errorf("fits: read pixels: %w", err)
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case 32:
		buf := make([]int32, n)
		if err := img.Read(&buf); err != nil {
			return nil, fmt.Errorf("fits: read pixels: %w", err)
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case 64:
		buf := make([]int64, n)
		if err := img.Read(&buf); err != nil {
			return nil, fmt.Errorf("fits: read pixels: %w", err)
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case -32:
		buf := make([]float32, n)
		if err := img.Read(&buf); err != nil {
			return nil, fmt.Errorf("fits: read pixels: %w", err)
		}
		for i, v := range buf {
			out[i] = float64(v)
		}
	case -64:
		if err := img.Read(&out); err != nil {
			return nil, fmt.Errorf("fits: read pixels: %w", err)
		}
	default:
		return nil, fmt.Errorf("fits: BITPIX=%d: %w", bitpix, ErrUnsupportedFormat)
	}
	return out, nil
}

// headerOf flattens fitsio cards into a Header. Numeric and logical values
// are formatted back to their card text.
func headerOf(fh *fitsio.Header) Header {
	hdr := make(Header)
	for _, key := range fh.Keys() {
		card := fh.Get(key)
		if card == nil || card.Value == nil {
			continue
		}
		hdr[strings.ToUpper(key)] = cardText(card.Value)
	}
	return hdr
}

func cardText(v interface{}) string {
	switch v := v.(type) {
	case string:
		return strings.TrimRight(v, " ")
	case bool:
		if v {
			return "T"
		}
		return "F"
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	default:
		return fmt.Sprint(v)
	}
}

// cardValue strips quotes and inline comments from a raw card value field.
// Only legacy map headers, which fitsio cannot open, are parsed this way.
func cardValue(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "'") {
		// '' is an escaped quote inside a string value
		var b strings.Builder
		for i := 1; i < len(s); i++ {
			if s[i] == '\'' {
				if i+1 < len(s) && s[i+1] == '\'' {
					b.WriteByte('\'')
					i++
					continue
				}
				break
			}
			b.WriteByte(s[i])
		}
		return strings.TrimRight(b.String(), " ")
	}
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
