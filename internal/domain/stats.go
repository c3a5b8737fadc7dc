package domain

import (
	"math"

	"github.com/go-gota/gota/series"
)

// Stat is a per-bucket statistic.
type Stat string

const (
	StatMax    Stat = "max"
	StatMin    Stat = "min"
	StatMean   Stat = "mean"
	StatStd    Stat = "std"
	StatMedian Stat = "median"
	StatSum    Stat = "sum"
	StatMode   Stat = "mode"
)

// statSuffixes holds the output naming convention for each statistic.
var statSuffixes = map[Stat]string{
	StatMax:    "max",
	StatMin:    "min",
	StatMean:   "med",
	StatStd:    "dp",
	StatMedian: "mediana",
	StatSum:    "tot",
	StatMode:   "moda",
}

// Suffix returns the column suffix for s, e.g. "med" for the mean.
func (s Stat) Suffix() string {
	if suffix, ok := statSuffixes[s]; ok {
		return suffix
	}
	return string(s)
}

// summarize computes a numeric statistic, skipping NaN values. Statistics
// over no values are NaN, except the sum which is 0. The standard deviation
// is the sample deviation and needs at least two values.
func summarize(stat Stat, values []float64) float64 {
	vals := dropNaN(values)
	if stat == StatSum {
		total := 0.0
		for _, v := range vals {
			total += v
		}
		return total
	}
	if len(vals) == 0 {
		return math.NaN()
	}

	s := series.Floats(vals)
	switch stat {
	case StatMax:
		return s.Max()
	case StatMin:
		return s.Min()
	case StatMean:
		return s.Mean()
	case StatMedian:
		return s.Median()
	case StatStd:
		if len(vals) < 2 {
			return math.NaN()
		}
		return s.StdDev()
	default:
		return math.NaN()
	}
}

// modeSector returns the most frequent valid sector. Ties go to the sector
// that comes first in compass order; an all-missing input yields SectorMissing.
func modeSector(values []Sector) Sector {
	var counts [len(sectorLabels)]int
	for _, s := range values {
		if s.Valid() {
			counts[s]++
		}
	}
	best, bestCount := SectorMissing, 0
	for i, c := range counts {
		if c > bestCount {
			best, bestCount = Sector(i), c
		}
	}
	return best
}

func dropNaN(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// roundHalfEven rounds v to the given number of decimals, resolving exact
// halves to the even neighbor.
func roundHalfEven(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scale := math.Pow10(decimals)
	return math.RoundToEven(v*scale) / scale
}

// CircularMeanDegrees returns the direction of the vector mean of the given
// bearings in [0, 360), skipping NaN. It returns NaN when there are no
// bearings or they cancel out. The aggregation plans keep the arithmetic
// mean for Dir_vento so existing exports stay comparable.
func CircularMeanDegrees(bearings []float64) float64 {
	var sinSum, cosSum float64
	n := 0
	for _, b := range bearings {
		if math.IsNaN(b) {
			continue
		}
		rad := b * math.Pi / 180
		sinSum += math.Sin(rad)
		cosSum += math.Cos(rad)
		n++
	}
	if n == 0 || math.Hypot(sinSum, cosSum) < 1e-9*float64(n) {
		return math.NaN()
	}
	deg := math.Atan2(sinSum, cosSum) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
