// Package report renders analysis results as markdown reports, CSV exports
// and the one-line-per-file listing.
package report

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/esa.report/internal/catalog"
	"github.com/banshee-data/esa.report/internal/params"
)

// ListLine describes one file by name alone: base name, file type, test type
// and every parameter present, e.g.
//
//	ACI_ESA_Beam-1000eV_ESA--181.fits  fits voltage_sweep beam_energy_value=1000 esa_voltage_value=-181
func ListLine(rec *catalog.FileRecord) string {
	var b strings.Builder
	b.WriteString(filepath.Base(rec.Path()))
	b.WriteString("  ")
	b.WriteString(string(rec.FileType))
	b.WriteString(" ")
	b.WriteString(string(rec.TestType))
	for _, f := range params.Fields {
		v := rec.Value(f)
		if v.IsAbsent() {
			continue
		}
		fmt.Fprintf(&b, " %s=%s", f, quoteIfSpaced(v.String()))
	}
	if rec.IsAngleRange() {
		fmt.Fprintf(&b, " inner_angle_range=%g..%g", rec.InnerAngleRange.Min, rec.InnerAngleRange.Max)
	}
	return b.String()
}

// WriteList writes one ListLine per record.
func WriteList(w io.Writer, recs []*catalog.FileRecord) error {
	bw := bufio.NewWriter(w)
	for _, r := range recs {
		fmt.Fprintln(bw, ListLine(r))
	}
	return bw.Flush()
}

func quoteIfSpaced(s string) string {
	if strings.ContainsAny(s, " \t") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
