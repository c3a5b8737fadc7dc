// Package csvfile writes climate tables as flat CSV files and reads them back.
package csvfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = time.DateOnly
)

// sectorSuffix marks aggregated mode columns, which hold compass labels.
const sectorSuffix = "_moda"

// Writer stores each table as {dir}/{name}.csv. It implements pipeline.Sink.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a Writer rooted at dir. The directory is created on the
// first write.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{dir: dir, logger: logger}
}

func (w *Writer) Name() string { return "csv" }

// Dir returns the export directory.
func (w *Writer) Dir() string { return w.dir }

// Path returns the file a table with the given name is written to.
func (w *Writer) Path(name string) string {
	return TablePath(w.dir, name)
}

// TablePath returns the file a table with the given name is exported to
// under dir.
func TablePath(dir, name string) string {
	return filepath.Join(dir, name+".csv")
}

// Write encodes the table and replaces any previous export of the same name.
func (w *Writer) Write(ctx context.Context, t domain.NamedFrame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.Frame.Len() == 0 {
		return fmt.Errorf("%w: table %s has no rows", domain.ErrEmpty, t.Name)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create export dir %s: %w", w.dir, err)
	}

	path := w.Path(t.Name)
	tmp, err := os.CreateTemp(w.dir, "."+t.Name+"-*.csv")
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, t.Frame); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	w.logger.Info("table exported", "table", t.Name, "title", t.Title, "rows", t.Frame.Len(), "path", path)
	return nil
}

// Encode writes f with a leading Datetime column.
func Encode(w io.Writer, f domain.Frame) error {
	df := dataframe.LoadRecords(Records(f),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		return df.Err
	}
	return df.WriteCSV(w)
}

// Records renders f as string records, header first. Missing values are
// empty cells. Timestamps are written date-only when every one of them is
// midnight, which is the case for daily and coarser tables.
func Records(f domain.Frame) [][]string {
	cols := f.Columns()
	header := append([]string{domain.ColDatetime}, cols...)

	layout := dateLayout
	for _, ts := range f.Index() {
		if !ts.Equal(ts.Truncate(24 * time.Hour)) {
			layout = timestampLayout
			break
		}
	}

	records := make([][]string, 0, f.Len()+1)
	records = append(records, header)
	for i, ts := range f.Index() {
		row := make([]string, 0, len(header))
		row = append(row, ts.UTC().Format(layout))
		for _, c := range cols {
			if v, ok := f.Float(c); ok {
				row = append(row, FormatFloat(v[i]))
				continue
			}
			s, _ := f.Sector(c)
			row = append(row, s[i].String())
		}
		records = append(records, row)
	}
	return records
}

// FormatFloat renders v the way the exported tables always have: integral
// values keep a trailing ".0" and NaN is an empty string.
func FormatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return ""
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// ReadFile reads a table previously written by Writer.
func ReadFile(path string) (domain.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Frame{}, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return domain.Frame{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	frame, err := Read(f)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("read %s: %w", path, err)
	}
	return frame, nil
}

// Read decodes a table with a Datetime column. Ori_vento and *_moda columns
// become sector columns; everything else is numeric. Rows whose timestamp
// cannot be parsed are dropped.
func Read(r io.Reader) (domain.Frame, error) {
	df := dataframe.ReadCSV(r,
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nil),
	)
	if df.Err != nil {
		if strings.Contains(df.Err.Error(), "empty DataFrame") {
			return domain.Frame{}, fmt.Errorf("%w: no rows", domain.ErrEmpty)
		}
		return domain.Frame{}, fmt.Errorf("%w: %v", domain.ErrFormat, df.Err)
	}

	names := df.Names()
	hasDatetime := false
	for _, n := range names {
		if n == domain.ColDatetime {
			hasDatetime = true
		}
	}
	if !hasDatetime {
		return domain.Frame{}, fmt.Errorf("%w: missing columns [%s]", domain.ErrSchema, domain.ColDatetime)
	}

	var (
		index []time.Time
		keep  []int
	)
	for i, raw := range df.Col(domain.ColDatetime).Records() {
		ts, err := parseTimestamp(raw)
		if err != nil {
			continue
		}
		index = append(index, ts)
		keep = append(keep, i)
	}
	if len(index) == 0 {
		return domain.Frame{}, fmt.Errorf("%w: no rows with a valid %s", domain.ErrEmpty, domain.ColDatetime)
	}

	frame := domain.NewFrame(index)
	for _, name := range names {
		if name == domain.ColDatetime {
			continue
		}
		raw := df.Col(name).Records()
		var err error
		if isSectorColumn(name) {
			values := make([]domain.Sector, len(keep))
			for j, row := range keep {
				if values[j], err = domain.ParseSector(strings.TrimSpace(raw[row])); err != nil {
					return domain.Frame{}, fmt.Errorf("column %s row %d: %w", name, row+1, err)
				}
			}
			frame, err = frame.WithSector(name, values)
		} else {
			values := make([]float64, len(keep))
			for j, row := range keep {
				if values[j], err = parseFloat(raw[row]); err != nil {
					return domain.Frame{}, fmt.Errorf("%w: column %s row %d: %v", domain.ErrFormat, name, row+1, err)
				}
			}
			frame, err = frame.WithFloat(name, values)
		}
		if err != nil {
			return domain.Frame{}, err
		}
	}
	return frame, nil
}

func isSectorColumn(name string) bool {
	return name == domain.ColOriVento || strings.HasSuffix(name, sectorSuffix)
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ts, err := time.Parse(timestampLayout, s); err == nil {
		return ts, nil
	}
	return time.Parse(dateLayout, s)
}

func parseFloat(s string) (float64, error) {
	switch s = strings.TrimSpace(s); s {
	case "", "NaN", "nan":
		return math.NaN(), nil
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	return strconv.ParseFloat(s, 64)
}
