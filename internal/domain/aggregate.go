package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// outputDecimals is the precision of every aggregated value.
const outputDecimals = 1

// ColumnStats names the statistics computed for one source column.
type ColumnStats struct {
	Column string
	Stats  []Stat
}

// OutputName returns the aggregated column name, e.g. "Temp_med".
func (c ColumnStats) OutputName(s Stat) string {
	return c.Column + "_" + s.Suffix()
}

// DefaultPlan is the statistic set for canonical climate tables. Dir_vento
// is summarized arithmetically, not with circular statistics.
var DefaultPlan = []ColumnStats{
	{Column: ColTemp, Stats: []Stat{StatMax, StatMin, StatMean, StatStd, StatMedian}},
	{Column: ColUmi, Stats: []Stat{StatMax, StatMin, StatMean, StatStd, StatMedian}},
	{Column: ColVelVento, Stats: []Stat{StatMax, StatMin, StatMean, StatStd, StatMedian}},
	{Column: ColDirVento, Stats: []Stat{StatMean, StatStd, StatMedian}},
	{Column: ColPrecipitacao, Stats: []Stat{StatSum, StatStd}},
	{Column: ColOriVento, Stats: []Stat{StatMode}},
}

// ApparentTemperatureStats extends a plan with Sensacao_termica summaries.
var ApparentTemperatureStats = ColumnStats{
	Column: ColSensacaoTermica,
	Stats:  []Stat{StatMax, StatMin, StatMean, StatStd, StatMedian},
}

// primaryColumn is the statistic whose absence marks a bucket without
// observations; such buckets are dropped rather than zero-filled.
var primaryColumn = ColumnStats{Column: ColTemp}.OutputName(StatMax)

// Aggregator resamples a canonical Frame into one row per period bucket.
type Aggregator struct {
	plan []ColumnStats
}

// NewAggregator creates an Aggregator for the given plan. A nil plan uses
// DefaultPlan.
func NewAggregator(plan []ColumnStats) *Aggregator {
	if plan == nil {
		plan = DefaultPlan
	}
	return &Aggregator{plan: plan}
}

// Plan returns the statistic plan.
func (a *Aggregator) Plan() []ColumnStats { return a.plan }

// Required returns the source columns the plan reads, in plan order.
func (a *Aggregator) Required() []string {
	cols := make([]string, 0, len(a.plan))
	for _, c := range a.plan {
		cols = append(cols, c.Column)
	}
	return cols
}

// Aggregate resamples f at period p. The table name is only used in error
// messages. Every required column is checked before any bucket is computed.
func (a *Aggregator) Aggregate(table string, f Frame, p Period) (Frame, error) {
	if missing := f.Missing(a.Required()...); len(missing) > 0 {
		return Frame{}, fmt.Errorf("%w: table %s is missing columns %v", ErrSchema, table, missing)
	}
	if err := a.checkTypes(table, f); err != nil {
		return Frame{}, err
	}
	if f.Len() == 0 {
		return Frame{}, fmt.Errorf("%w: table %s has no rows to aggregate", ErrEmpty, table)
	}

	labels, groups := groupByBucket(f.Index(), p)

	out := NewFrame(labels)
	var err error
	for _, cs := range a.plan {
		if sectors, ok := f.Sector(cs.Column); ok {
			modes := make([]Sector, len(groups))
			for g, rows := range groups {
				modes[g] = modeSector(pickSectors(sectors, rows))
			}
			if out, err = out.WithSector(cs.OutputName(StatMode), modes); err != nil {
				return Frame{}, err
			}
			continue
		}

		values, _ := f.Float(cs.Column)
		for _, stat := range cs.Stats {
			col := make([]float64, len(groups))
			for g, rows := range groups {
				col[g] = roundHalfEven(summarize(stat, pickFloats(values, rows)), outputDecimals)
			}
			if out, err = out.WithFloat(cs.OutputName(stat), col); err != nil {
				return Frame{}, err
			}
		}
	}

	if primary, ok := out.Float(primaryColumn); ok {
		out = out.Filter(func(i int) bool { return !math.IsNaN(primary[i]) })
	}
	return out, nil
}

// checkTypes rejects plans that ask for a mode of a numeric column or a
// numeric statistic of a sector column.
func (a *Aggregator) checkTypes(table string, f Frame) error {
	for _, cs := range a.plan {
		_, isSector := f.Sector(cs.Column)
		for _, s := range cs.Stats {
			if (s == StatMode) != isSector {
				return fmt.Errorf("%w: table %s column %s does not support statistic %s", ErrSchema, table, cs.Column, s)
			}
		}
	}
	return nil
}

// groupByBucket returns the sorted bucket labels and, for each, the row
// positions that fall into it.
func groupByBucket(index []time.Time, p Period) ([]time.Time, [][]int) {
	byKey := make(map[int64][]int)
	labelOf := make(map[int64]time.Time)
	for i, ts := range index {
		label := p.Bucket(ts)
		key := label.Unix()
		byKey[key] = append(byKey[key], i)
		labelOf[key] = label
	}

	keys := make([]int64, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	labels := make([]time.Time, len(keys))
	groups := make([][]int, len(keys))
	for i, k := range keys {
		labels[i] = labelOf[k]
		groups[i] = byKey[k]
	}
	return labels, groups
}

func pickFloats(values []float64, rows []int) []float64 {
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}

func pickSectors(values []Sector, rows []int) []Sector {
	out := make([]Sector, len(rows))
	for i, r := range rows {
		out[i] = values[r]
	}
	return out
}

// BuildPlan returns DefaultPlan, optionally extended with apparent
// temperature statistics.
func BuildPlan(withApparentTemperature bool) []ColumnStats {
	plan := slices.Clone(DefaultPlan)
	if withApparentTemperature {
		plan = append(plan, ApparentTemperatureStats)
	}
	return plan
}
