// Package testutil provides shared test utilities and fixtures.
//
// This package centralises common test helpers to reduce code duplication
// across test files and improve test maintainability. The builders here
// produce detector file names and payloads in the formats the acquisition
// software writes.
package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
)

// Name builds a detailed-convention file name. Empty fields are omitted.
type Name struct {
	Inner string // "62" or "84to-118"
	Hor   string
	Beam  string // eV
	Focus string // "X-pt4-Y-2"
	Wave  string
	ESA   string // signed volts
	MCP   string
	Stamp string // "240922-213604"
	Ext   string // defaults to ".fits"
}

func (n Name) String() string {
	var b strings.Builder
	b.WriteString("ACI_ESA")
	if n.Inner != "" {
		b.WriteString("-Inner-" + n.Inner)
	}
	if n.Hor != "" {
		b.WriteString("-Hor" + n.Hor)
	}
	if n.Beam != "" {
		b.WriteString("_Beam-" + n.Beam + "eV")
	}
	if n.Focus != "" {
		b.WriteString("_Focus-" + n.Focus)
	}
	if n.Wave != "" {
		b.WriteString("_Wave-" + n.Wave)
	}
	if n.ESA != "" {
		b.WriteString("_ESA-" + n.ESA)
	}
	if n.MCP != "" {
		b.WriteString("_MCP-" + n.MCP)
	}
	if n.Stamp != "" {
		b.WriteString(n.Stamp)
	}
	ext := n.Ext
	if ext == "" {
		ext = ".fits"
	}
	b.WriteString(ext)
	return b.String()
}

// Card is one FITS header keyword.
type Card struct {
	Key   string
	Value string
}

// FITS encodes a BITPIX -64 primary HDU holding a rows x cols image.
// Extra card values are written as strings when quoted, as logicals for
// T and F, and as numbers otherwise.
func FITS(rows, cols int, pixels []float64, extra ...Card) []byte {
	if len(pixels) != rows*cols {
		panic(fmt.Sprintf("testutil: %d pixels for %dx%d image", len(pixels), rows, cols))
	}
	img := fitsio.NewImage(-64, []int{cols, rows})
	defer img.Close()
	cards := make([]fitsio.Card, 0, len(extra))
	for _, c := range extra {
		cards = append(cards, fitsio.Card{Name: c.Key, Value: c.value()})
	}
	if err := img.Header().Append(cards...); err != nil {
		panic(fmt.Sprintf("testutil: header: %v", err))
	}
	data := append([]float64(nil), pixels...)
	if err := img.Write(&data); err != nil {
		panic(fmt.Sprintf("testutil: pixels: %v", err))
	}

	var buf bytes.Buffer
	f, err := fitsio.Create(&buf)
	if err != nil {
		panic(fmt.Sprintf("testutil: create: %v", err))
	}
	if err := f.Write(img); err != nil {
		panic(fmt.Sprintf("testutil: write: %v", err))
	}
	if err := f.Close(); err != nil {
		panic(fmt.Sprintf("testutil: close: %v", err))
	}
	return buf.Bytes()
}

func (c Card) value() interface{} {
	switch v := c.Value; {
	case strings.HasPrefix(v, "'"):
		return strings.Trim(v, "'")
	case v == "T" || v == "F":
		return v == "T"
	default:
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		return v
	}
}

// FITSHeader hand-encodes cards followed by END, padded to a 2880-byte
// block. It builds headers fitsio would refuse to write.
func FITSHeader(cards ...Card) []byte {
	var buf bytes.Buffer
	for _, c := range cards {
		fmt.Fprintf(&buf, "%-8s= %20s", c.Key, c.Value)
		padTo(&buf, 80)
	}
	buf.WriteString("END")
	padTo(&buf, 80)
	padBlock(&buf, ' ')
	return buf.Bytes()
}

// Image returns a rows x cols image that is zero except for the given
// pixels, keyed by [row, col].
func Image(rows, cols int, set map[[2]int]float64) []float64 {
	out := make([]float64, rows*cols)
	for rc, v := range set {
		out[rc[0]*cols+rc[1]] = v
	}
	return out
}

// PHD encodes a tab-separated pulse height distribution with a title row.
func PHD(bins, counts []float64) []byte {
	var b strings.Builder
	b.WriteString("adc_bin\tcounts\n")
	for i := range bins {
		fmt.Fprintf(&b, "%g\t%g\n", bins[i], counts[i])
	}
	return []byte(b.String())
}

// LegacyMap encodes a legacy 1024x1024 .map file whose pixel (r, c) is
// pixel(r, c).
func LegacyMap(pixel func(r, c int) uint16) []byte {
	const n = 1024
	buf := make([]byte, 2880+n*n*2)
	copy(buf, FITSHeader(Card{"EXPTIME", "10"}))
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			binary.BigEndian.PutUint16(buf[2880+2*(r*n+c):], pixel(r, c))
		}
	}
	return buf
}

func padTo(buf *bytes.Buffer, n int) {
	if rem := buf.Len() % n; rem != 0 {
		buf.Write(bytes.Repeat([]byte{' '}, n-rem))
	}
}

func padBlock(buf *bytes.Buffer, fill byte) {
	if rem := buf.Len() % 2880; rem != 0 {
		buf.Write(bytes.Repeat([]byte{fill}, 2880-rem))
	}
}
