// Package units provides shared constants and validation for beam energy
// display units
package units

import "strconv"

// Unit constants
const (
	EV  = "ev"
	KEV = "kev"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{EV, KEV}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "ev, kev"
}

// ConvertEnergy converts an energy from electronvolts to the target units.
// Records store beam energies in eV.
func ConvertEnergy(energyEV float64, targetUnits string) float64 {
	switch targetUnits {
	case KEV:
		return energyEV / 1000
	default:
		return energyEV
	}
}

// Symbol returns the printed unit symbol.
func Symbol(unit string) string {
	if unit == KEV {
		return "keV"
	}
	return "eV"
}

// FormatEnergy renders an energy in eV as "1000 eV" or "1 keV".
func FormatEnergy(energyEV float64, unit string) string {
	return strconv.FormatFloat(ConvertEnergy(energyEV, unit), 'g', -1, 64) + " " + Symbol(unit)
}
