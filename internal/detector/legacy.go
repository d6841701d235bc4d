package detector

import (
	"encoding/binary"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Legacy .map files are one 2880-byte header block followed by a raw
// 1024x1024 big-endian uint16 image.
const (
	LegacyMapSize = 1024
	legacyMapLen  = blockSize + LegacyMapSize*LegacyMapSize*2
)

// IsLegacyMap reports whether data has the exact legacy map layout.
func IsLegacyMap(data []byte) bool {
	return len(data) == legacyMapLen
}

// DecodeLegacyMap reads a legacy .map file. Header cards are read when the
// header block holds any.
func DecodeLegacyMap(data []byte) (*Frame, error) {
	if !IsLegacyMap(data) {
		return nil, ErrTruncated
	}

	hdr := make(Header)
	for off := 0; off+cardSize <= blockSize; off += cardSize {
		card := string(data[off : off+cardSize])
		key := strings.TrimSpace(card[:8])
		if key == "END" {
			break
		}
		if key != "" && card[8:10] == "= " {
			hdr[key] = cardValue(card[10:])
		}
	}

	pix := data[blockSize:]
	out := make([]float64, LegacyMapSize*LegacyMapSize)
	for i := range out {
		out[i] = float64(binary.BigEndian.Uint16(pix[2*i:]))
	}
	return &Frame{Image: mat.NewDense(LegacyMapSize, LegacyMapSize, out), Header: hdr}, nil
}
