// Package epw loads EnergyPlus Weather (EPW) typical-year files into the
// canonical hourly climate table.
package epw

import (
	"bufio"
	"context"
	"encoding/csv"
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

	"github.com/couchcryptid/climate-data-etl/internal/domain"
)

const (
	// headerLines is the number of LOCATION/DESIGN CONDITIONS/... lines that
	// precede the hourly data.
	headerLines = 8
	// fieldCount is the fixed number of comma-separated fields per data row.
	fieldCount = 35

	// DefaultNominalYear replaces the per-row year, which in a typical-year
	// file only records which real year each month was taken from.
	DefaultNominalYear = 2001
)

// Zero-based positions of the fields projected onto the canonical table.
const (
	fieldMonth        = 1
	fieldDay          = 2
	fieldHour         = 3 // 1-24
	fieldDryBulb      = 6
	fieldRelHumidity  = 8
	fieldWindDir      = 20
	fieldWindSpeed    = 21
	fieldLiquidPrecip = 33
)

// Loader reads one EPW file. It implements pipeline.Source.
type Loader struct {
	name        string
	title       string
	path        string
	nominalYear int
	logger      *slog.Logger
}

// NewLoader creates a Loader for the file at path. A non-positive nominal
// year falls back to DefaultNominalYear.
func NewLoader(name, title, path string, nominalYear int, logger *slog.Logger) *Loader {
	if nominalYear <= 0 {
		nominalYear = DefaultNominalYear
	}
	if title == "" {
		title = name
	}
	return &Loader{name: name, title: title, path: path, nominalYear: nominalYear, logger: logger}
}

func (l *Loader) Name() string  { return l.name }
func (l *Loader) Title() string { return l.title }

// Load opens the file and parses it into a canonical frame with Ori_vento.
func (l *Loader) Load(ctx context.Context) (domain.Frame, error) {
	if !strings.EqualFold(filepath.Ext(l.path), ".epw") {
		return domain.Frame{}, fmt.Errorf("%w: %s: expected .epw extension", domain.ErrFormat, l.path)
	}
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Frame{}, fmt.Errorf("%w: epw file %s", domain.ErrNotFound, l.path)
		}
		return domain.Frame{}, fmt.Errorf("open epw file %s: %w", l.path, err)
	}
	defer f.Close()

	frame, err := Parse(ctx, f, l.nominalYear)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("epw file %s: %w", l.path, err)
	}
	l.logger.Debug("epw file loaded", "source", l.name, "path", l.path, "rows", frame.Len())
	return frame, nil
}

// Parse reads EPW content: it skips the header block, validates the
// 35-field layout, synthesizes Datetime from month, day and hour in the
// nominal year, and projects the canonical columns.
func Parse(ctx context.Context, r io.Reader, nominalYear int) (domain.Frame, error) {
	br := bufio.NewReader(r)
	for i := 0; i < headerLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return domain.Frame{}, fmt.Errorf("%w: header has %d of %d lines", domain.ErrFormat, i, headerLines)
			}
			return domain.Frame{}, fmt.Errorf("read epw header: %w", err)
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	var (
		index                     []time.Time
		temp, umi, vel, dir, rain []float64
	)
	for line := headerLines + 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Frame{}, fmt.Errorf("%w: line %d: %v", domain.ErrFormat, line, err)
		}
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return domain.Frame{}, err
			}
		}
		if len(rec) != fieldCount {
			return domain.Frame{}, fmt.Errorf("%w: line %d has %d fields, want %d", domain.ErrFormat, line, len(rec), fieldCount)
		}

		ts, err := synthesizeDatetime(nominalYear, rec[fieldMonth], rec[fieldDay], rec[fieldHour])
		if err != nil {
			return domain.Frame{}, fmt.Errorf("line %d: %w", line, err)
		}

		var vals [5]float64
		for i, pos := range [...]int{fieldDryBulb, fieldRelHumidity, fieldWindSpeed, fieldWindDir, fieldLiquidPrecip} {
			v, err := parseFloat(rec[pos])
			if err != nil {
				return domain.Frame{}, fmt.Errorf("%w: line %d field %d: %v", domain.ErrFormat, line, pos+1, err)
			}
			vals[i] = v
		}

		index = append(index, ts)
		temp = append(temp, vals[0])
		umi = append(umi, vals[1])
		vel = append(vel, vals[2])
		dir = append(dir, vals[3])
		rain = append(rain, vals[4])
	}

	if len(index) == 0 {
		return domain.Frame{}, fmt.Errorf("%w: no hourly rows after header", domain.ErrEmpty)
	}

	sectors, err := domain.ClassifyBearings(dir)
	if err != nil {
		return domain.Frame{}, err
	}

	frame := domain.NewFrame(index)
	for _, col := range []struct {
		name   string
		values []float64
	}{
		{domain.ColTemp, temp},
		{domain.ColUmi, umi},
		{domain.ColVelVento, vel},
		{domain.ColDirVento, dir},
		{domain.ColPrecipitacao, rain},
	} {
		if frame, err = frame.WithFloat(col.name, col.values); err != nil {
			return domain.Frame{}, err
		}
	}
	return frame.WithSector(domain.ColOriVento, sectors)
}

// synthesizeDatetime combines the nominal year with the row's month, day and
// 1-24 hour. Components are validated instead of normalized, so 30 February
// is an error rather than 2 March.
func synthesizeDatetime(year int, month, day, hour string) (time.Time, error) {
	m, errM := parseInt(month)
	d, errD := parseInt(day)
	h, errH := parseInt(hour)
	if err := errors.Join(errM, errD, errH); err != nil {
		return time.Time{}, fmt.Errorf("%w: datetime synthesis failed: %v", domain.ErrSchema, err)
	}
	h--

	if m < 1 || m > 12 || h < 0 || h > 23 {
		return time.Time{}, fmt.Errorf("%w: datetime synthesis failed: month %d hour %d", domain.ErrSchema, m, h+1)
	}
	ts := time.Date(year, time.Month(m), d, h, 0, 0, 0, time.UTC)
	if d < 1 || ts.Month() != time.Month(m) {
		return time.Time{}, fmt.Errorf("%w: datetime synthesis failed: day %d out of range for %d-%02d", domain.ErrSchema, d, year, m)
	}
	return ts, nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// parseFloat parses a numeric field; an empty field is missing.
func parseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
