package detector

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// DecodePHD reads a tab-separated pulse height distribution: one
// "adc_bin<TAB>counts" row per line. Header rows and '#' comments are
// skipped.
func DecodePHD(data []byte) (*Frame, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = '\t'
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	h := &Histogram{}
	line := 0
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("phd: line %d: %w", line, err)
		}
		if len(row) < 2 {
			continue
		}
		bin, err1 := strconv.ParseFloat(strings.TrimSpace(row[0]), 64)
		count, err2 := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err1 != nil || err2 != nil {
			if len(h.Bins) == 0 {
				// column titles
				continue
			}
			return nil, fmt.Errorf("phd: line %d: non-numeric row %q", line, strings.Join(row, "\t"))
		}
		h.Bins = append(h.Bins, bin)
		h.Counts = append(h.Counts, count)
	}
	if len(h.Bins) == 0 {
		return nil, ErrNoData
	}
	return &Frame{Histogram: h, Header: Header{}}, nil
}
