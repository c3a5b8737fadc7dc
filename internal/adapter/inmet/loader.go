// Package inmet loads INMET automatic-station CSV exports into the canonical
// hourly climate table.
package inmet

import (
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

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
)

// Source column headers in INMET exports. The wind direction column is
// labeled in m/s by INMET but holds degrees.
const (
	colDate      = "Data"
	colHour      = "Hora (UTC)"
	colTemp      = "Temp. Ins. (C)"
	colHumidity  = "Umi. Ins. (%)"
	colWindSpeed = "Vel. Vento (m/s)"
	colWindDir   = "Dir. Vento (m/s)"
	colRain      = "Chuva (mm)"
)

// missingMarker is the sentinel INMET writes for sensor gaps.
const missingMarker = -9999

// projection maps INMET headers onto canonical columns, in canonical order.
var projection = []struct {
	source    string
	canonical string
}{
	{colTemp, domain.ColTemp},
	{colHumidity, domain.ColUmi},
	{colWindSpeed, domain.ColVelVento},
	{colWindDir, domain.ColDirVento},
	{colRain, domain.ColPrecipitacao},
}

// Timestamps must fit a signed 64-bit nanosecond count, the range the
// exported tables have always been limited to.
var (
	minTimestamp = time.Unix(0, math.MinInt64).UTC()
	maxTimestamp = time.Unix(0, math.MaxInt64).UTC()
)

// Encoding selects how raw bytes are decoded.
type Encoding string

const (
	EncodingUTF8   Encoding = "utf-8"
	EncodingLatin1 Encoding = "iso-8859-1"
)

// ParseEncoding accepts the common spellings of the supported encodings.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "utf-8", "utf8":
		return EncodingUTF8, nil
	case "iso-8859-1", "latin1", "latin-1":
		return EncodingLatin1, nil
	default:
		return "", fmt.Errorf("%w: unsupported encoding %q", domain.ErrFormat, s)
	}
}

// Loader reads and joins the two half-year exports of one station-year. It
// implements pipeline.Source.
type Loader struct {
	name       string
	title      string
	firstHalf  string
	secondHalf string
	encoding   Encoding
	logger     *slog.Logger
}

// NewLoader creates a Loader for the "a" and "b" halves of a station-year.
func NewLoader(name, title, firstHalf, secondHalf string, enc Encoding, logger *slog.Logger) *Loader {
	if title == "" {
		title = name
	}
	if enc == "" {
		enc = EncodingUTF8
	}
	return &Loader{
		name:       name,
		title:      title,
		firstHalf:  firstHalf,
		secondHalf: secondHalf,
		encoding:   enc,
		logger:     logger,
	}
}

func (l *Loader) Name() string  { return l.name }
func (l *Loader) Title() string { return l.title }

// Load parses both halves, concatenates them in order, classifies wind
// sectors and drops rows without a temperature reading.
func (l *Loader) Load(ctx context.Context) (domain.Frame, error) {
	first, err := l.loadFile(ctx, l.firstHalf)
	if err != nil {
		return domain.Frame{}, err
	}
	second, err := l.loadFile(ctx, l.secondHalf)
	if err != nil {
		return domain.Frame{}, err
	}

	joined, err := first.Concat(second)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("inmet %s: %w", l.name, err)
	}
	frame, err := Finalize(joined)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("inmet %s: %w", l.name, err)
	}

	l.logger.Debug("inmet station-year loaded",
		"source", l.name,
		"rows", frame.Len(),
		"dropped", joined.Len()-frame.Len(),
	)
	return frame, nil
}

func (l *Loader) loadFile(ctx context.Context, path string) (domain.Frame, error) {
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return domain.Frame{}, fmt.Errorf("%w: %s: expected .csv extension", domain.ErrFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Frame{}, fmt.Errorf("%w: inmet file %s", domain.ErrNotFound, path)
		}
		return domain.Frame{}, fmt.Errorf("open inmet file %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if l.encoding == EncodingLatin1 {
		r = transform.NewReader(f, charmap.ISO8859_1.NewDecoder())
	}

	frame, err := Parse(ctx, r)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("inmet file %s: %w", path, err)
	}
	return frame, nil
}

// Parse reads one semicolon-delimited, comma-decimal export. Metadata lines
// before the header row are skipped. The result carries Datetime and the
// numeric canonical columns; Ori_vento and the temperature filter are
// applied by Finalize once both halves are joined.
func Parse(ctx context.Context, r io.Reader) (domain.Frame, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, line, err := findHeader(cr)
	if err != nil {
		return domain.Frame{}, err
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[headerName(h)] = i
	}
	var missing []string
	for _, name := range []string{colDate, colHour, colTemp, colHumidity, colWindSpeed, colWindDir, colRain} {
		if _, ok := pos[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return domain.Frame{}, fmt.Errorf("%w: missing columns %q", domain.ErrSchema, missing)
	}

	var index []time.Time
	values := make([][]float64, len(projection))
	for {
		rec, err := cr.Read()
		line++
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
		if isBlank(rec) {
			continue
		}

		ts, err := parseTimestamp(field(rec, pos[colDate]), field(rec, pos[colHour]))
		if err != nil {
			return domain.Frame{}, fmt.Errorf("line %d: %w", line, err)
		}
		for i, p := range projection {
			v, err := parseDecimal(field(rec, pos[p.source]))
			if err != nil {
				return domain.Frame{}, fmt.Errorf("%w: line %d column %s: %v", domain.ErrFormat, line, p.source, err)
			}
			values[i] = append(values[i], v)
		}
		index = append(index, ts)
	}

	frame := domain.NewFrame(index)
	for i, p := range projection {
		col := values[i]
		if col == nil {
			col = []float64{}
		}
		if frame, err = frame.WithFloat(p.canonical, col); err != nil {
			return domain.Frame{}, err
		}
	}
	return frame, nil
}

// Finalize classifies Ori_vento from Dir_vento and drops rows whose
// temperature is missing.
func Finalize(f domain.Frame) (domain.Frame, error) {
	dir, ok := f.Float(domain.ColDirVento)
	if !ok {
		return domain.Frame{}, fmt.Errorf("%w: missing column %s", domain.ErrSchema, domain.ColDirVento)
	}
	sectors, err := domain.ClassifyBearings(dir)
	if err != nil {
		return domain.Frame{}, err
	}
	f, err = f.WithSector(domain.ColOriVento, sectors)
	if err != nil {
		return domain.Frame{}, err
	}

	temp, _ := f.Float(domain.ColTemp)
	out := f.Filter(func(i int) bool { return !math.IsNaN(temp[i]) })
	if out.Len() == 0 {
		return domain.Frame{}, fmt.Errorf("%w: no rows with a temperature reading", domain.ErrEmpty)
	}
	return out, nil
}

// findHeader returns the first record naming both the date and hour
// columns, with the number of lines consumed.
func findHeader(cr *csv.Reader) ([]string, int, error) {
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, line, fmt.Errorf("%w: missing columns %q", domain.ErrSchema, []string{colDate, colHour})
		}
		if err != nil {
			return nil, line, fmt.Errorf("%w: line %d: %v", domain.ErrFormat, line, err)
		}
		var hasDate, hasHour bool
		for _, h := range rec {
			switch headerName(h) {
			case colDate:
				hasDate = true
			case colHour:
				hasHour = true
			}
		}
		if hasDate && hasHour {
			return rec, line, nil
		}
	}
}

// headerName trims a header cell, including the byte order mark some
// exports put before the first column.
func headerName(h string) string {
	return strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
}

// parseTimestamp combines a DD/MM/YYYY date with an HHMM UTC hour.
func parseTimestamp(date, hhmm string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(date), "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("%w: date %q is not DD/MM/YYYY", domain.ErrFormat, date)
	}
	var dmy [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: date %q: %v", domain.ErrFormat, date, err)
		}
		dmy[i] = n
	}
	hourField := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(hhmm), "UTC"))
	code, err := strconv.Atoi(hourField)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: hour %q: %v", domain.ErrFormat, hhmm, err)
	}
	day, month, year, hour := dmy[0], dmy[1], dmy[2], code/100

	if month < 1 || month > 12 || hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("%w: date %q hour %q is not a calendar time", domain.ErrFormat, date, hhmm)
	}
	ts := time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC)
	if day < 1 || ts.Day() != day {
		return time.Time{}, fmt.Errorf("%w: date %q is not a calendar day", domain.ErrFormat, date)
	}
	if ts.Before(minTimestamp) || ts.After(maxTimestamp) {
		return time.Time{}, fmt.Errorf("%w: date %q outside %s..%s", domain.ErrRange, date,
			minTimestamp.Format(time.DateOnly), maxTimestamp.Format(time.DateOnly))
	}
	return ts, nil
}

// parseDecimal parses a comma-decimal number. Empty cells and the INMET
// missing marker are NaN.
func parseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil {
		return 0, err
	}
	if v == missingMarker {
		return math.NaN(), nil
	}
	return v, nil
}

func field(rec []string, i int) string {
	if i < len(rec) {
		return rec[i]
	}
	return ""
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
