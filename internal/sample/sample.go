// Package sample generates deterministic synthetic EPW and INMET files for
// tests and local runs.
package sample

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

// Hour is one synthetic observation.
type Hour struct {
	Time      time.Time
	Temp      float64 // °C
	Humidity  float64 // %
	WindSpeed float64 // m/s
	WindDir   float64 // degrees
	Rain      float64 // mm
}

// Climate parameterizes the generator. The zero value is not useful; start
// from Subtropical.
type Climate struct {
	MeanTemp       float64
	SeasonalSwing  float64 // half the summer-winter difference, °C
	DailySwing     float64 // half the day-night difference, °C
	PrevailingWind float64 // degrees
	RainChance     float64 // per hour, 0-1
	GapChance      float64 // per hour, chance of a missing reading
}

// Subtropical resembles a coastal southern-Brazil station.
var Subtropical = Climate{
	MeanTemp:       21.5,
	SeasonalSwing:  4.5,
	DailySwing:     4,
	PrevailingWind: 135,
	RainChance:     0.06,
}

// Generator produces hourly series from a fixed seed.
type Generator struct {
	climate Climate
	rng     *rand.Rand
}

// NewGenerator returns a generator whose output depends only on seed.
func NewGenerator(c Climate, seed uint64) *Generator {
	return &Generator{climate: c, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Hours generates n consecutive hourly observations starting at start.
func (g *Generator) Hours(start time.Time, n int) []Hour {
	out := make([]Hour, n)
	for i := range out {
		ts := start.Add(time.Duration(i) * time.Hour)
		// Southern hemisphere: warmest around late January.
		season := math.Cos(2 * math.Pi * float64(ts.YearDay()-25) / 365)
		day := math.Sin(2 * math.Pi * float64(ts.Hour()-9) / 24)
		temp := g.climate.MeanTemp + g.climate.SeasonalSwing*season + g.climate.DailySwing*day + g.rng.NormFloat64()*0.8

		hum := clamp(78-2.2*(temp-g.climate.MeanTemp)+g.rng.NormFloat64()*5, 25, 100)
		speed := math.Abs(2.5 + 1.2*day + g.rng.NormFloat64()*1.1)
		dir := math.Mod(g.climate.PrevailingWind+g.rng.NormFloat64()*70+360, 360)

		rain := 0.0
		if g.rng.Float64() < g.climate.RainChance {
			rain = g.rng.ExpFloat64() * 1.5
		}

		h := Hour{
			Time:      ts,
			Temp:      round1(temp),
			Humidity:  math.Round(hum),
			WindSpeed: round1(speed),
			WindDir:   math.Round(dir),
			Rain:      round1(rain),
		}
		if g.climate.GapChance > 0 && g.rng.Float64() < g.climate.GapChance {
			h.Humidity = math.NaN()
			h.WindSpeed = math.NaN()
		}
		out[i] = h
	}
	return out
}

// Year generates every hour of year.
func (g *Generator) Year(year int) []Hour {
	start := time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(1, 0, 0)
	return g.Hours(start, int(end.Sub(start)/time.Hour))
}

const epwHeader = `LOCATION,Synthetic Station,SP,BRA,SYNTHETIC,000000,-24.70,-47.55,-3.0,3.0
DESIGN CONDITIONS,0
TYPICAL/EXTREME PERIODS,0
GROUND TEMPERATURES,0
HOLIDAYS/DAYLIGHT SAVINGS,No,0,0,0
COMMENTS 1,Synthetic typical year
COMMENTS 2,Generated for tests
DATA PERIODS,1,1,Data,Sunday, 1/ 1,12/31
`

// WriteEPW writes hours as an EPW file. sourceYear fills the per-row year
// field, which readers ignore. Missing values use the EPW sentinels.
func WriteEPW(w io.Writer, hours []Hour, sourceYear int) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(epwHeader); err != nil {
		return err
	}
	fields := make([]string, 35)
	for _, h := range hours {
		for i := range fields {
			fields[i] = "0"
		}
		fields[0] = strconv.Itoa(sourceYear)
		fields[1] = strconv.Itoa(int(h.Time.Month()))
		fields[2] = strconv.Itoa(h.Time.Day())
		fields[3] = strconv.Itoa(h.Time.Hour() + 1)
		fields[4] = "60"
		fields[5] = "?9?9?9?9E0?9?9?9?9?9?9?9?9?9?9?9?9?9?9?9*9*9?9?9?9"
		fields[6] = epwValue(h.Temp, "99.9")
		fields[7] = epwValue(h.Temp-3, "99.9")
		fields[8] = epwValue(h.Humidity, "999")
		fields[9] = "101325"
		fields[20] = epwValue(h.WindDir, "999")
		fields[21] = epwValue(h.WindSpeed, "999")
		fields[33] = epwValue(h.Rain, "999")
		if _, err := bw.WriteString(strings.Join(fields, ",") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func epwValue(v float64, missing string) string {
	if math.IsNaN(v) {
		return missing
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// INMETStation identifies the station in the export preamble.
type INMETStation struct {
	Region, State, Name, Code string
	Latitude, Longitude     float64
}

// DefaultStation is used when no station is given.
var DefaultStation = INMETStation{Region: "SE", State: "SP", Name: "IGUAPE", Code: "A712", Latitude: -24.67, Longitude: -47.55}

const inmetHeader = "Data;Hora (UTC);PRECIPITAÇÃO TOTAL, HORÁRIO (mm);Chuva (mm);" +
	"PRESSAO ATMOSFERICA AO NIVEL DA ESTACAO, HORARIA (mB);Temp. Ins. (C);Umi. Ins. (%);" +
	"Vel. Vento (m/s);Dir. Vento (m/s);\n"

// WriteINMET writes hours as an INMET automatic-station export with its
// metadata preamble. Missing values are written as -9999.
func WriteINMET(w io.Writer, st INMETStation, hours []Hour) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "REGIAO:;%s\nUF:;%s\nESTACAO:;%s\nCODIGO (WMO):;%s\nLATITUDE:;%s\nLONGITUDE:;%s\n",
		st.Region, st.State, st.Name, st.Code, inmetDecimal(st.Latitude), inmetDecimal(st.Longitude))
	bw.WriteString(inmetHeader)
	for _, h := range hours {
		fmt.Fprintf(bw, "%s;%s UTC;%s;%s;1013,2;%s;%s;%s;%s;\n",
			h.Time.Format("02/01/2006"),
			h.Time.Format("1504"),
			inmetDecimal(h.Rain),
			inmetDecimal(h.Rain),
			inmetDecimal(h.Temp),
			inmetDecimal(h.Humidity),
			inmetDecimal(h.WindSpeed),
			inmetDecimal(h.WindDir),
		)
	}
	return bw.Flush()
}

func inmetDecimal(v float64) string {
	if math.IsNaN(v) {
		return "-9999"
	}
	return strings.Replace(strconv.FormatFloat(v, 'f', -1, 64), ".", ",", 1)
}

// SplitHalves splits a calendar year of hours into January-June and
// July-December, the way INMET distributes its exports.
func SplitHalves(hours []Hour) (first, second []Hour) {
	for i, h := range hours {
		if h.Time.Month() > time.June {
			return hours[:i], hours[i:]
		}
	}
	return hours, nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
