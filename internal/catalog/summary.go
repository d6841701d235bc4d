package catalog

import (
	"sort"
	"time"

	"github.com/banshee-data/esa.report/internal/params"
)

// Summary describes the catalog contents from file names alone.
type Summary struct {
	Total        int                     `json:"total"`
	ByFileType   map[params.FileType]int `json:"by_file_type"`
	ByTestType   map[params.TestType]int `json:"by_test_type"`
	BeamEnergies []float64               `json:"beam_energies"`
	ESAVoltages  []float64               `json:"esa_voltages"`
	First        *time.Time              `json:"first,omitempty"`
	Last         *time.Time              `json:"last,omitempty"`
}

// Summary counts records per file type and test type and lists the distinct
// beam energies and ESA voltages, sorted ascending. Payloads are not loaded.
func (c *Catalog) Summary() Summary {
	s := Summary{
		ByFileType: make(map[params.FileType]int),
		ByTestType: make(map[params.TestType]int),
	}
	energies := make(map[float64]bool)
	voltages := make(map[float64]bool)

	for _, r := range c.All() {
		s.Total++
		s.ByFileType[r.FileType]++
		s.ByTestType[r.TestType]++
		if r.BeamEnergy != nil {
			energies[*r.BeamEnergy] = true
		}
		if r.ESAVoltage != nil {
			voltages[*r.ESAVoltage] = true
		}
		if ts := r.Timestamp; ts != nil {
			if s.First == nil || ts.Before(*s.First) {
				s.First = ts
			}
			if s.Last == nil || ts.After(*s.Last) {
				s.Last = ts
			}
		}
	}
	s.BeamEnergies = sortedKeys(energies)
	s.ESAVoltages = sortedKeys(voltages)
	return s
}

func sortedKeys(m map[float64]bool) []float64 {
	out := make([]float64, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Float64s(out)
	return out
}
