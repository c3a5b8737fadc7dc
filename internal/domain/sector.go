package domain

import (
	"fmt"
	"math"
)

// Sector is one of the eight ordered compass sectors used for wind origin.
// The zero value is north; SectorMissing marks an undefined bearing.
type Sector int8

const (
	SectorN Sector = iota
	SectorNE
	SectorL // east (leste)
	SectorSE
	SectorS
	SectorSO // southwest (sudoeste)
	SectorO  // west (oeste)
	SectorNO // northwest (noroeste)

	SectorMissing Sector = -1
)

// sectorLabels is the compass order; categorical grouping and mode
// tie-breaking both follow it.
var sectorLabels = [...]string{"N", "NE", "L", "SE", "S", "SO", "O", "NO"}

const sectorWidth = 45.0

// Sectors returns the eight sectors in compass order.
func Sectors() []Sector {
	out := make([]Sector, len(sectorLabels))
	for i := range sectorLabels {
		out[i] = Sector(i)
	}
	return out
}

// String returns the sector label, or "" for SectorMissing.
func (s Sector) String() string {
	if !s.Valid() {
		return ""
	}
	return sectorLabels[s]
}

// Valid reports whether s is one of the eight compass sectors.
func (s Sector) Valid() bool {
	return s >= 0 && int(s) < len(sectorLabels)
}

// ParseSector maps a label back to its sector. The empty string yields
// SectorMissing without error.
func ParseSector(label string) (Sector, error) {
	if label == "" {
		return SectorMissing, nil
	}
	for i, l := range sectorLabels {
		if l == label {
			return Sector(i), nil
		}
	}
	return SectorMissing, fmt.Errorf("%w: unknown wind sector %q", ErrFormat, label)
}

// ClassifyBearing converts a bearing in degrees into its compass sector.
// The bearing is shifted by half a sector so each sector is centered on its
// cardinal point, then reduced modulo 360; 360 and 0 both map to north and
// negative bearings wrap around. NaN and infinite bearings yield SectorMissing.
func ClassifyBearing(deg float64) Sector {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return SectorMissing
	}
	adjusted := math.Mod(deg+sectorWidth/2, 360)
	if adjusted < 0 {
		adjusted += 360
	}
	idx := int(math.Floor(adjusted / sectorWidth))
	// Rounding can push a value just below 360 onto 360/45 = 8.
	if idx >= len(sectorLabels) {
		idx = 0
	}
	return Sector(idx)
}

// ClassifyBearings classifies a whole wind-direction series. An empty or
// nil series is a caller precondition failure, not a per-row condition.
func ClassifyBearings(bearings []float64) ([]Sector, error) {
	if len(bearings) == 0 {
		return nil, fmt.Errorf("%w: wind direction series is empty", ErrEmpty)
	}
	out := make([]Sector, len(bearings))
	for i, b := range bearings {
		out[i] = ClassifyBearing(b)
	}
	return out, nil
}
