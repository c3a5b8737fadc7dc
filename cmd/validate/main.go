// Command validate checks the integrity of an export directory written by
// the climate ETL. For every source named in the job file it re-reads the
// hourly table, recomputes the apparent temperature, re-aggregates each
// period table and compares it with the exported one, then checks that
// extremes agree across periods.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -job raw/climate-job.yaml \
//	  -export-dir raw/climate_csv
package main

import (
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/climate-data-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/climate-data-etl/internal/config"
	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/pipeline"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// export holds the tables of one source as read back from disk.
type export struct {
	name    string
	hourly  domain.Frame
	periods map[domain.Period]domain.Frame
}

func main() {
	jobFile := flag.String("job", sharedcfg.EnvOrDefault("JOB_FILE", "climate-job.yaml"), "job file listing the sources")
	exportDir := flag.String("export-dir", sharedcfg.EnvOrDefault("EXPORT_DIR", "raw/climate_csv"), "directory the ETL exported to")
	periodList := flag.String("periods", "", "comma-separated periods to check (default: the job's periods)")
	flag.Parse()

	if *jobFile == "" || *exportDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*jobFile, *exportDir, *periodList); code != 0 {
		os.Exit(code)
	}
}

func run(jobFile, exportDir, periodList string) int {
	fmt.Println("=== Climate Export Integrity Validation ===")
	fmt.Println()

	job, err := config.LoadJob(jobFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load job: %v\n", err)
		return 1
	}
	periods, err := selectPeriods(job, periodList)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	exports, err := loadExports(exportDir, sourceNames(job), periods)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load exports: %v\n", err)
		return 1
	}

	// Sensacao_termica statistics are present only when the ETL ran with
	// AGGREGATE_APPARENT_TEMPERATURE; follow whatever the export contains.
	aggregator := domain.NewAggregator(domain.BuildPlan(hasApparentStats(exports)))

	// ── Run validation phases ──
	phases := []*phase{
		validateHourlySchema(exports),
		validateApparentTemperature(exports),
		validateReaggregation(exports, aggregator, periods),
		validateCrossPeriod(exports, aggregator, periods),
	}

	// ── Report results ──
	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Sources: %d, periods: %d, tables: %d, hourly rows: %d\n",
		len(exports), len(periods), len(exports)*(1+len(periods)), countHourly(exports))

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			if i >= 20 {
				fmt.Printf("  ... and %d more\n", len(p.errors)-20)
				break
			}
			fmt.Printf("  %s\n", e)
		}
	}

	if !allPassed {
		return 1
	}
	fmt.Println("\nAll checks passed.")
	return 0
}

func selectPeriods(job *config.Job, list string) ([]domain.Period, error) {
	if list == "" {
		return job.ParsedPeriods()
	}
	override := config.Job{Periods: strings.Split(list, ",")}
	return override.ParsedPeriods()
}

func sourceNames(job *config.Job) []string {
	names := make([]string, 0, len(job.EPW)+len(job.INMET))
	for _, s := range job.EPW {
		names = append(names, s.Name)
	}
	for _, s := range job.INMET {
		names = append(names, s.Name)
	}
	return names
}

// ── Loading ──

func loadExports(dir string, names []string, periods []domain.Period) ([]export, error) {
	var errs []error
	exports := make([]export, 0, len(names))
	for _, name := range names {
		e := export{name: name, periods: make(map[domain.Period]domain.Frame, len(periods))}
		hourly, err := csvfile.ReadFile(csvfile.TablePath(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		e.hourly = hourly
		for _, p := range periods {
			table, err := csvfile.ReadFile(csvfile.TablePath(dir, pipeline.TableName(name, p)))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			e.periods[p] = table
		}
		exports = append(exports, e)
	}
	return exports, errors.Join(errs...)
}

func hasApparentStats(exports []export) bool {
	col := domain.ApparentTemperatureStats.OutputName(domain.StatMax)
	for _, e := range exports {
		for _, f := range e.periods {
			if f.Has(col) {
				return true
			}
		}
	}
	return false
}

func countHourly(exports []export) int {
	n := 0
	for _, e := range exports {
		n += e.hourly.Len()
	}
	return n
}

// ── Phase 1: hourly tables ──

func validateHourlySchema(exports []export) *phase {
	p := &phase{name: "Phase 1: Hourly Tables (schema)"}
	required := append(slices.Clone(domain.CanonicalColumns), domain.ColSensacaoTermica)

	for _, e := range exports {
		if missing := e.hourly.Missing(required...); len(missing) > 0 {
			p.errorf("%s: missing columns %v", e.name, missing)
			continue
		}
		index := e.hourly.Index()
		for i := 1; i < len(index); i++ {
			if index[i].Before(index[i-1]) {
				p.errorf("%s row %d: %s is before %s", e.name, i+1, fmtTime(index[i]), fmtTime(index[i-1]))
				break
			}
		}

		temp, _ := e.hourly.Float(domain.ColTemp)
		dir, _ := e.hourly.Float(domain.ColDirVento)
		sectors, _ := e.hourly.Sector(domain.ColOriVento)
		for i := range index {
			if math.IsNaN(temp[i]) {
				p.errorf("%s %s: %s is missing", e.name, fmtTime(index[i]), domain.ColTemp)
			}
			if want := domain.ClassifyBearing(dir[i]); sectors[i] != want {
				p.errorf("%s %s: %s=%q, %s=%v classifies as %q",
					e.name, fmtTime(index[i]), domain.ColOriVento, sectors[i], domain.ColDirVento, dir[i], want)
			}
		}
	}
	return p
}

// ── Phase 2: apparent temperature ──

func validateApparentTemperature(exports []export) *phase {
	p := &phase{name: "Phase 2: Apparent Temperature (derivation)"}
	for _, e := range exports {
		felt, ok := e.hourly.Float(domain.ColSensacaoTermica)
		if !ok {
			continue // reported by phase 1
		}
		temp, _ := e.hourly.Float(domain.ColTemp)
		rh, _ := e.hourly.Float(domain.ColUmi)
		wind, _ := e.hourly.Float(domain.ColVelVento)
		for i, ts := range e.hourly.Index() {
			want := domain.ApparentTemperature(temp[i], rh[i], wind[i])
			if !floatEq(felt[i], want) {
				p.errorf("%s %s: %s=%v, recomputed %v (T=%v RH=%v V=%v)",
					e.name, fmtTime(ts), domain.ColSensacaoTermica, felt[i], want, temp[i], rh[i], wind[i])
			}
		}
	}
	return p
}

// ── Phase 3: re-aggregation ──

func validateReaggregation(exports []export, agg *domain.Aggregator, periods []domain.Period) *phase {
	p := &phase{name: "Phase 3: Period Tables (re-aggregation)"}
	for _, e := range exports {
		for _, period := range periods {
			table := pipeline.TableName(e.name, period)
			got, ok := e.periods[period]
			if !ok {
				continue
			}
			want, err := agg.Aggregate(table, e.hourly, period)
			if err != nil {
				p.errorf("%s: re-aggregate: %v", table, err)
				continue
			}
			compareFrames(p, table, got, want)
		}
	}
	return p
}

func compareFrames(p *phase, table string, got, want domain.Frame) {
	if !slices.Equal(got.Columns(), want.Columns()) {
		p.errorf("%s: columns %v, expected %v", table, got.Columns(), want.Columns())
		return
	}
	if got.Len() != want.Len() {
		p.errorf("%s: %d rows, expected %d", table, got.Len(), want.Len())
		return
	}
	for i, ts := range want.Index() {
		if !got.Index()[i].Equal(ts) {
			p.errorf("%s row %d: bucket %s, expected %s", table, i+1, fmtTime(got.Index()[i]), fmtTime(ts))
			return
		}
	}

	for _, col := range want.Columns() {
		if ws, ok := want.Sector(col); ok {
			gs, _ := got.Sector(col)
			for i := range ws {
				if gs[i] != ws[i] {
					p.errorf("%s %s: %s=%q, expected %q", table, fmtTime(want.Index()[i]), col, gs[i], ws[i])
				}
			}
			continue
		}
		wv, _ := want.Float(col)
		gv, _ := got.Float(col)
		for i := range wv {
			if !floatEq(gv[i], wv[i]) {
				p.errorf("%s %s: %s=%v, expected %v", table, fmtTime(want.Index()[i]), col, gv[i], wv[i])
			}
		}
	}
}

// ── Phase 4: cross-period extremes ──

// validateCrossPeriod checks that every coarser bucket's maxima and minima
// are the extremes of the finer buckets it contains. Rounding preserves
// order, so the comparison is exact. Weeks straddle months, so weekly
// tables are only ever the coarser side.
func validateCrossPeriod(exports []export, agg *domain.Aggregator, periods []domain.Period) *phase {
	p := &phase{name: "Phase 4: Cross-Period Consistency (extremes)"}

	ordered := slices.Clone(periods)
	slices.Sort(ordered)

	for _, e := range exports {
		for i, fine := range ordered {
			if fine == domain.Weekly {
				continue
			}
			for _, coarse := range ordered[i+1:] {
				ff, ok1 := e.periods[fine]
				cf, ok2 := e.periods[coarse]
				if !ok1 || !ok2 {
					continue
				}
				checkExtremes(p, e.name, agg, fine, coarse, ff, cf)
			}
		}
	}
	return p
}

func checkExtremes(p *phase, source string, agg *domain.Aggregator, fine, coarse domain.Period, ff, cf domain.Frame) {
	label := fmt.Sprintf("%s %s→%s", source, fine.Name(), coarse.Name())

	rows := make(map[time.Time][]int)
	for i, ts := range ff.Index() {
		b := coarse.Bucket(ts)
		rows[b] = append(rows[b], i)
	}
	if len(rows) != cf.Len() {
		p.errorf("%s: %d coarse buckets, %d expected from the finer table", label, cf.Len(), len(rows))
		return
	}

	for _, cs := range agg.Plan() {
		for _, stat := range cs.Stats {
			if stat != domain.StatMax && stat != domain.StatMin {
				continue
			}
			col := cs.OutputName(stat)
			fv, ok1 := ff.Float(col)
			cv, ok2 := cf.Float(col)
			if !ok1 || !ok2 {
				continue
			}
			for i, ts := range cf.Index() {
				members, ok := rows[ts]
				if !ok {
					p.errorf("%s: bucket %s has no finer rows", label, fmtTime(ts))
					continue
				}
				want := extreme(stat, fv, members)
				if !floatEq(cv[i], want) {
					p.errorf("%s %s: %s=%v, finer rows give %v", label, fmtTime(ts), col, cv[i], want)
				}
			}
		}
	}
}

func extreme(stat domain.Stat, values []float64, rows []int) float64 {
	out := math.NaN()
	for _, r := range rows {
		v := values[r]
		switch {
		case math.IsNaN(v):
		case math.IsNaN(out),
			stat == domain.StatMax && v > out,
			stat == domain.StatMin && v < out:
			out = v
		}
	}
	return out
}

// ── Helpers ──

func floatEq(a, b float64) bool {
	if a == b {
		return true
	}
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-9
}

func fmtTime(t time.Time) string {
	return t.Format(time.DateTime)
}
