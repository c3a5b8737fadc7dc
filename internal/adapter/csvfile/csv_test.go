package csvfile

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourlyFrame(t *testing.T) domain.Frame {
	t.Helper()
	start := time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)
	f := domain.NewFrame([]time.Time{start, start.Add(time.Hour)})
	f, err := f.WithFloat(domain.ColTemp, []float64{25, 23.9})
	require.NoError(t, err)
	f, err = f.WithFloat(domain.ColUmi, []float64{80, math.NaN()})
	require.NoError(t, err)
	f, err = f.WithSector(domain.ColOriVento, []domain.Sector{domain.SectorSO, domain.SectorMissing})
	require.NoError(t, err)
	return f
}

func TestRecords_Hourly(t *testing.T) {
	got := Records(hourlyFrame(t))
	want := [][]string{
		{"Datetime", "Temp", "Umi", "Ori_vento"},
		{"2019-01-01 00:00:00", "25.0", "80.0", "SO"},
		{"2019-01-01 01:00:00", "23.9", "", ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestRecords_DateOnlyWhenAllMidnight(t *testing.T) {
	f := domain.NewFrame([]time.Time{
		time.Date(2001, 1, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2001, 2, 28, 0, 0, 0, 0, time.UTC),
	})
	f, err := f.WithFloat("Temp_max", []float64{31.2, 30})
	require.NoError(t, err)

	got := Records(f)
	assert.Equal(t, []string{"2001-01-31", "31.2"}, got[1])
	assert.Equal(t, []string{"2001-02-28", "30.0"}, got[2])
}

func TestFormatFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{25, "25.0"},
		{-3, "-3.0"},
		{0, "0.0"},
		{7.1, "7.1"},
		{math.NaN(), ""},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFloat(tt.in), "%v", tt.in)
	}
}

func TestEncodeRead_RoundTrip(t *testing.T) {
	in := hourlyFrame(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, in))
	assert.True(t, strings.HasPrefix(buf.String(), "Datetime,Temp,Umi,Ori_vento\n"))

	out, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Index(), out.Index())
	assert.Equal(t, in.Columns(), out.Columns())

	temp, _ := out.Float(domain.ColTemp)
	assert.Equal(t, []float64{25, 23.9}, temp)
	umi, _ := out.Float(domain.ColUmi)
	assert.True(t, math.IsNaN(umi[1]))
	sectors, ok := out.Sector(domain.ColOriVento)
	require.True(t, ok)
	assert.Equal(t, []domain.Sector{domain.SectorSO, domain.SectorMissing}, sectors)
}

func TestRead_DropsUnparseableTimestamps(t *testing.T) {
	in := "Datetime,Temp_max,Ori_vento_moda\n2001-01-07,30.1,N\nnot a date,1.0,S\n2001-01-14,29.0,NO\n"

	out, err := Read(strings.NewReader(in))
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	modes, ok := out.Sector("Ori_vento_moda")
	require.True(t, ok)
	assert.Equal(t, []domain.Sector{domain.SectorN, domain.SectorNO}, modes)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"header only", "Datetime,Temp\n", domain.ErrEmpty},
		{"no datetime column", "Time,Temp\n2001-01-01,1.0\n", domain.ErrSchema},
		{"bad number", "Datetime,Temp\n2001-01-01,warm\n", domain.ErrFormat},
		{"bad sector", "Datetime,Ori_vento\n2001-01-01,E\n", domain.ErrFormat},
		{"no valid timestamps", "Datetime,Temp\nyesterday,1.0\n", domain.ErrEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.in))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWriter_Write(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "climate_csv")
	w := NewWriter(dir, discardLogger())
	assert.Equal(t, "csv", w.Name())

	err := w.Write(context.Background(), domain.NamedFrame{Name: "inmet_2019", Title: "INMET 2019", Frame: hourlyFrame(t)})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "inmet_2019.csv"))
	require.NoError(t, err)
	assert.Equal(t, "Datetime,Temp,Umi,Ori_vento\n2019-01-01 00:00:00,25.0,80.0,SO\n2019-01-01 01:00:00,23.9,,\n", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")

	back, err := ReadFile(w.Path("inmet_2019"))
	require.NoError(t, err)
	assert.Equal(t, 2, back.Len())
}

func TestTablePath(t *testing.T) {
	assert.Equal(t, filepath.Join("exports", "inmet_2019_mensal.csv"), TablePath("exports", "inmet_2019_mensal"))
	assert.Equal(t, TablePath("exports", "epw"), NewWriter("exports", discardLogger()).Path("epw"))
}

func TestWriter_WriteEmpty(t *testing.T) {
	w := NewWriter(t.TempDir(), discardLogger())
	err := w.Write(context.Background(), domain.NamedFrame{Name: "empty", Frame: domain.NewFrame(nil)})
	require.ErrorIs(t, err, domain.ErrEmpty)
}

func TestWriter_WriteCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewWriter(t.TempDir(), discardLogger()).Write(ctx, domain.NamedFrame{Name: "x", Frame: hourlyFrame(t)})
	require.ErrorIs(t, err, context.Canceled)
}

func TestReadFile_NotFound(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
