package domain

import (
	"fmt"
	"slices"
	"time"
)

// Canonical column names shared by both loaders and the aggregator.
const (
	ColDatetime        = "Datetime"
	ColTemp            = "Temp"
	ColUmi             = "Umi"
	ColVelVento        = "Vel_vento"
	ColDirVento        = "Dir_vento"
	ColPrecipitacao    = "Precipitacao"
	ColOriVento        = "Ori_vento"
	ColSensacaoTermica = "Sensacao_termica"
)

// CanonicalColumns lists the loader output columns in order, excluding the
// Datetime index.
var CanonicalColumns = []string{ColTemp, ColUmi, ColVelVento, ColDirVento, ColPrecipitacao, ColOriVento}

// Frame is a column-oriented table indexed by observation time. Float
// columns use NaN for missing values; sector columns use SectorMissing.
//
// Frames are treated as values: the With* methods return a new Frame and
// never modify the receiver, so a Frame can be handed to several
// consumers without aliasing surprises.
type Frame struct {
	index   []time.Time
	order   []string
	floats  map[string][]float64
	sectors map[string][]Sector
}

// NewFrame returns an empty Frame over the given index.
func NewFrame(index []time.Time) Frame {
	return Frame{
		index:   index,
		floats:  map[string][]float64{},
		sectors: map[string][]Sector{},
	}
}

// Len returns the number of rows.
func (f Frame) Len() int { return len(f.index) }

// Index returns the row timestamps. Callers must not modify the slice.
func (f Frame) Index() []time.Time { return f.index }

// Columns returns the column names in insertion order.
func (f Frame) Columns() []string { return slices.Clone(f.order) }

// Float returns a float column.
func (f Frame) Float(name string) ([]float64, bool) {
	v, ok := f.floats[name]
	return v, ok
}

// Sector returns a sector column.
func (f Frame) Sector(name string) ([]Sector, bool) {
	v, ok := f.sectors[name]
	return v, ok
}

// Has reports whether the named column exists with any type.
func (f Frame) Has(name string) bool {
	_, fok := f.floats[name]
	_, sok := f.sectors[name]
	return fok || sok
}

// Missing returns the names that are not columns of f, preserving the
// order in which they were asked for.
func (f Frame) Missing(names ...string) []string {
	var missing []string
	for _, n := range names {
		if !f.Has(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// WithFloat returns a copy of f with the float column set. Replacing an
// existing column keeps its position.
func (f Frame) WithFloat(name string, values []float64) (Frame, error) {
	if len(values) != f.Len() {
		return Frame{}, fmt.Errorf("%w: column %s has %d rows, index has %d", ErrSchema, name, len(values), f.Len())
	}
	out := f.clone()
	delete(out.sectors, name)
	out.floats[name] = values
	out.addName(name)
	return out, nil
}

// WithSector returns a copy of f with the sector column set.
func (f Frame) WithSector(name string, values []Sector) (Frame, error) {
	if len(values) != f.Len() {
		return Frame{}, fmt.Errorf("%w: column %s has %d rows, index has %d", ErrSchema, name, len(values), f.Len())
	}
	out := f.clone()
	delete(out.floats, name)
	out.sectors[name] = values
	out.addName(name)
	return out, nil
}

// Filter returns the rows for which keep returns true.
func (f Frame) Filter(keep func(i int) bool) Frame {
	rows := make([]int, 0, f.Len())
	for i := range f.index {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	return f.take(rows)
}

// Concat appends the rows of other below f. Both frames must carry the same
// columns with the same types.
func (f Frame) Concat(other Frame) (Frame, error) {
	if !slices.Equal(sortedNames(f), sortedNames(other)) {
		return Frame{}, fmt.Errorf("%w: cannot concatenate frames with columns %v and %v", ErrSchema, f.order, other.order)
	}
	out := NewFrame(append(slices.Clone(f.index), other.index...))
	out.order = slices.Clone(f.order)
	for name, v := range f.floats {
		ov, ok := other.floats[name]
		if !ok {
			return Frame{}, fmt.Errorf("%w: column %s changes type across frames", ErrSchema, name)
		}
		out.floats[name] = append(slices.Clone(v), ov...)
	}
	for name, v := range f.sectors {
		ov, ok := other.sectors[name]
		if !ok {
			return Frame{}, fmt.Errorf("%w: column %s changes type across frames", ErrSchema, name)
		}
		out.sectors[name] = append(slices.Clone(v), ov...)
	}
	return out, nil
}

func (f Frame) take(rows []int) Frame {
	idx := make([]time.Time, len(rows))
	for j, i := range rows {
		idx[j] = f.index[i]
	}
	out := NewFrame(idx)
	out.order = slices.Clone(f.order)
	for name, v := range f.floats {
		col := make([]float64, len(rows))
		for j, i := range rows {
			col[j] = v[i]
		}
		out.floats[name] = col
	}
	for name, v := range f.sectors {
		col := make([]Sector, len(rows))
		for j, i := range rows {
			col[j] = v[i]
		}
		out.sectors[name] = col
	}
	return out
}

func (f Frame) clone() Frame {
	out := Frame{
		index:   f.index,
		order:   slices.Clone(f.order),
		floats:  make(map[string][]float64, len(f.floats)+1),
		sectors: make(map[string][]Sector, len(f.sectors)+1),
	}
	for k, v := range f.floats {
		out.floats[k] = v
	}
	for k, v := range f.sectors {
		out.sectors[k] = v
	}
	return out
}

func (f *Frame) addName(name string) {
	if !slices.Contains(f.order, name) {
		f.order = append(f.order, name)
	}
}

func sortedNames(f Frame) []string {
	names := slices.Clone(f.order)
	slices.Sort(names)
	return names
}

// NamedFrame pairs a table with the labels downstream sinks use: Name is the
// file/table identifier and Title the human-readable graph name.
type NamedFrame struct {
	Name  string
	Title string
	Frame Frame
}
