package domain

import (
	"fmt"
	"strings"
	"time"
)

// Period is a resampling frequency.
type Period int

const (
	Hourly Period = iota
	Daily
	Weekly
	Monthly
)

type periodInfo struct {
	code  string // pandas-style frequency alias
	name  string // table name suffix
	title string
}

var periods = map[Period]periodInfo{
	Hourly:  {code: "H", name: "horaria", title: "horária"},
	Daily:   {code: "D", name: "diaria", title: "diária"},
	Weekly:  {code: "W", name: "semanal", title: "semanal"},
	Monthly: {code: "ME", name: "mensal", title: "mensal"},
}

// AllPeriods returns every period from finest to coarsest.
func AllPeriods() []Period {
	return []Period{Hourly, Daily, Weekly, Monthly}
}

// ParsePeriod accepts either the frequency code (H, D, W, ME) or the table
// suffix (horaria, diaria, semanal, mensal), case-insensitively.
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	for p, info := range periods {
		if strings.EqualFold(s, info.code) || strings.EqualFold(s, info.name) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown period %q", ErrFormat, s)
}

// Code returns the frequency alias, e.g. "ME".
func (p Period) Code() string { return periods[p].code }

// Name returns the table suffix, e.g. "mensal".
func (p Period) Name() string { return periods[p].name }

// Title returns the display label used in graph titles.
func (p Period) Title() string { return periods[p].title }

func (p Period) String() string { return p.Name() }

// Bucket returns the label of the bucket containing t. Hourly and daily
// buckets are labeled by their start. Weekly buckets run Monday through
// Sunday and are labeled with the Sunday; monthly buckets are labeled with
// the last day of the month. Sub-day buckets keep the hour, the others are
// labeled at midnight.
func (p Period) Bucket(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch p {
	case Hourly:
		return t.Truncate(time.Hour)
	case Daily:
		return day
	case Weekly:
		untilSunday := (7 - int(day.Weekday())) % 7
		return day.AddDate(0, 0, untilSunday)
	case Monthly:
		return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC)
	default:
		panic(fmt.Sprintf("domain: unknown period %d", int(p)))
	}
}
