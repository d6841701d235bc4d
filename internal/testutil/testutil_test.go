package testutil

import (
	"testing"
)

func TestName(t *testing.T) {
	t.Parallel()

	got := Name{
		Inner: "62", Hor: "79", Beam: "1000", Focus: "X-pt4-Y-2",
		Wave: "Triangle", ESA: "-181", MCP: "2200-100", Stamp: "240922-213604",
	}.String()
	want := "ACI_ESA-Inner-62-Hor79_Beam-1000eV_Focus-X-pt4-Y-2_Wave-Triangle_ESA--181_MCP-2200-100240922-213604.fits"
	if got != want {
		t.Errorf("Name.String() =\n%s\nwant\n%s", got, want)
	}

	if got := (Name{Beam: "500", Ext: ".phd"}).String(); got != "ACI_ESA_Beam-500eV.phd" {
		t.Errorf("unexpected minimal name %q", got)
	}
}

func TestFITSLayout(t *testing.T) {
	t.Parallel()

	data := FITS(2, 3, []float64{1, 2, 3, 4, 5, 6}, Card{"EXPTIME", "5"})
	if len(data)%2880 != 0 {
		t.Fatalf("FITS length %d is not block aligned", len(data))
	}
	if string(data[:6]) != "SIMPLE" {
		t.Errorf("first card should be SIMPLE, got %q", data[:8])
	}
	// The header cards fit in one block
	if len(data) != 2*2880 {
		t.Errorf("expected header block plus one data block, got %d bytes", len(data))
	}
}

func TestLegacyMapLayout(t *testing.T) {
	t.Parallel()

	data := LegacyMap(func(r, c int) uint16 { return 0 })
	if len(data) != 2880+1024*1024*2 {
		t.Errorf("legacy map length = %d", len(data))
	}
}

func TestImage(t *testing.T) {
	t.Parallel()

	img := Image(2, 2, map[[2]int]float64{{1, 0}: 7})
	if img[2] != 7 || img[0] != 0 {
		t.Errorf("unexpected image %v", img)
	}
}
