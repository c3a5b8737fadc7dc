package inmet

import (
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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const preamble = `REGIAO:;S
UF:;SC
ESTACAO:;FLORIANOPOLIS
CODIGO (WMO):;A806
LATITUDE:;-27,60249999
`

const header = "Data;Hora (UTC);PRECIPITAÇÃO TOTAL, HORÁRIO (mm);Chuva (mm);Temp. Ins. (C);Umi. Ins. (%);Vel. Vento (m/s);Dir. Vento (m/s);\n"

func TestParse_ProjectsCanonicalColumns(t *testing.T) {
	content := preamble + header +
		"01/01/2019;0000 UTC;0;0;24,5;81;2,1;350;\n" +
		"01/01/2019;0100 UTC;0;1,2;23,9;-9999;;10;\n"

	frame, err := Parse(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())

	assert.Equal(t, time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC), frame.Index()[0])
	assert.Equal(t, time.Date(2019, 1, 1, 1, 0, 0, 0, time.UTC), frame.Index()[1])

	temp, _ := frame.Float(domain.ColTemp)
	assert.Equal(t, []float64{24.5, 23.9}, temp)

	umi, _ := frame.Float(domain.ColUmi)
	assert.Equal(t, 81.0, umi[0])
	assert.True(t, math.IsNaN(umi[1]), "-9999 is missing")

	vel, _ := frame.Float(domain.ColVelVento)
	assert.True(t, math.IsNaN(vel[1]), "empty cell is missing")

	rain, _ := frame.Float(domain.ColPrecipitacao)
	assert.Equal(t, []float64{0, 1.2}, rain)

	assert.Equal(t, []string{
		domain.ColTemp, domain.ColUmi, domain.ColVelVento, domain.ColDirVento, domain.ColPrecipitacao,
	}, frame.Columns())
}

func TestParse_HeaderWithoutPreamble(t *testing.T) {
	content := header + "15/06/2019;1800;0;0;12,0;70;3,0;180;\n"

	frame, err := Parse(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 6, 15, 18, 0, 0, 0, time.UTC), frame.Index()[0])
}

func TestParse_HeaderWithByteOrderMark(t *testing.T) {
	content := "\ufeff" + header + "15/06/2019;1800;0;0;12,0;70;3,0;180;\n"

	frame, err := Parse(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, 1, frame.Len())
	assert.Equal(t, time.Date(2019, 6, 15, 18, 0, 0, 0, time.UTC), frame.Index()[0])
	temp, _ := frame.Float(domain.ColTemp)
	assert.InDelta(t, 12.0, temp[0], 1e-9)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
		msg     string
	}{
		{
			name:    "no header row",
			content: preamble,
			wantErr: domain.ErrSchema,
		},
		{
			name:    "missing rain column",
			content: "Data;Hora (UTC);Temp. Ins. (C);Umi. Ins. (%);Vel. Vento (m/s);Dir. Vento (m/s)\n",
			wantErr: domain.ErrSchema,
			msg:     "Chuva (mm)",
		},
		{
			name:    "date with two parts",
			content: header + "01/2019;0000 UTC;0;0;24,5;81;2,1;350;\n",
			wantErr: domain.ErrFormat,
			msg:     "DD/MM/YYYY",
		},
		{
			name:    "non numeric date",
			content: header + "aa/01/2019;0000 UTC;0;0;24,5;81;2,1;350;\n",
			wantErr: domain.ErrFormat,
		},
		{
			name:    "invalid month",
			content: header + "01/13/2019;0000 UTC;0;0;24,5;81;2,1;350;\n",
			wantErr: domain.ErrFormat,
		},
		{
			name:    "invalid day",
			content: header + "31/04/2019;0000 UTC;0;0;24,5;81;2,1;350;\n",
			wantErr: domain.ErrFormat,
		},
		{
			name:    "year before timestamp range",
			content: header + "01/01/1600;0000 UTC;0;0;24,5;81;2,1;350;\n",
			wantErr: domain.ErrRange,
		},
		{
			name:    "year after timestamp range",
			content: header + "01/01/2300;0000 UTC;0;0;24,5;81;2,1;350;\n",
			wantErr: domain.ErrRange,
		},
		{
			name:    "bad decimal",
			content: header + "01/01/2019;0000 UTC;0;0;quente;81;2,1;350;\n",
			wantErr: domain.ErrFormat,
			msg:     "Temp. Ins. (C)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), strings.NewReader(tt.content))
			require.ErrorIs(t, err, tt.wantErr)
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestFinalize_DropsRowsWithoutTemperature(t *testing.T) {
	content := header +
		"01/01/2019;0000 UTC;0;0;24,5;81;2,1;350;\n" +
		"01/01/2019;0100 UTC;0;0;;81;2,1;90;\n" +
		"01/01/2019;0200 UTC;0;0;23,0;80;2,0;;\n"
	frame, err := Parse(context.Background(), strings.NewReader(content))
	require.NoError(t, err)

	out, err := Finalize(frame)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	sectors, ok := out.Sector(domain.ColOriVento)
	require.True(t, ok)
	assert.Equal(t, []domain.Sector{domain.SectorN, domain.SectorMissing}, sectors)
}

func TestFinalize_AllTemperaturesMissing(t *testing.T) {
	content := header + "01/01/2019;0000 UTC;0;0;-9999;81;2,1;350;\n"
	frame, err := Parse(context.Background(), strings.NewReader(content))
	require.NoError(t, err)

	_, err = Finalize(frame)
	require.ErrorIs(t, err, domain.ErrEmpty)
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "inmet_2019_a.csv")
	second := filepath.Join(dir, "inmet_2019_b.csv")
	require.NoError(t, os.WriteFile(first, []byte(preamble+header+
		"30/06/2019;2300 UTC;0;0;15,0;90;1,0;225;\n"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte(header+
		"01/07/2019;0000 UTC;0;0;14,0;91;1,5;45;\n"+
		"01/07/2019;0100 UTC;0;0;;91;1,5;45;\n"), 0o600))

	l := NewLoader("inmet_2019", "INMET 2019", first, second, "", discardLogger())
	assert.Equal(t, "inmet_2019", l.Name())
	assert.Equal(t, "INMET 2019", l.Title())

	frame, err := l.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	assert.Equal(t, time.Date(2019, 6, 30, 23, 0, 0, 0, time.UTC), frame.Index()[0])
	assert.Equal(t, time.Date(2019, 7, 1, 0, 0, 0, 0, time.UTC), frame.Index()[1])

	sectors, _ := frame.Sector(domain.ColOriVento)
	assert.Equal(t, []domain.Sector{domain.SectorSO, domain.SectorNE}, sectors)
}

func TestLoader_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "a.csv")
	require.NoError(t, os.WriteFile(present, []byte(header+"01/01/2019;0000 UTC;0;0;20,0;80;1,0;0;\n"), 0o600))

	_, err := NewLoader("x", "", present, filepath.Join(dir, "b.csv"), EncodingUTF8, discardLogger()).Load(context.Background())
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "b.csv")

	_, err = NewLoader("x", "", filepath.Join(dir, "a.txt"), present, EncodingUTF8, discardLogger()).Load(context.Background())
	require.ErrorIs(t, err, domain.ErrFormat)
}

func TestLoader_Latin1(t *testing.T) {
	dir := t.TempDir()
	encoded, err := charmap.ISO8859_1.NewEncoder().String(preamble + header + "01/01/2019;0000 UTC;0;0;20,0;80;1,0;0;\n")
	require.NoError(t, err)

	path := filepath.Join(dir, "latin1.csv")
	require.NoError(t, os.WriteFile(path, []byte(encoded), 0o600))

	frame, err := NewLoader("latin", "", path, path, EncodingLatin1, discardLogger()).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Len())
}

func TestParseEncoding(t *testing.T) {
	for in, want := range map[string]Encoding{
		"":           EncodingUTF8,
		"UTF-8":      EncodingUTF8,
		"latin1":     EncodingLatin1,
		"ISO-8859-1": EncodingLatin1,
	} {
		got, err := ParseEncoding(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseEncoding("cp1252")
	require.ErrorIs(t, err, domain.ErrFormat)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
