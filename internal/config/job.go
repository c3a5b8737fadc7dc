package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
)

// Job lists the raw files of one run and the periods to aggregate them at.
//
//	epw:
//	  - name: iguape_epw
//	    title: Iguape EPW
//	    path: raw/epw_raw/BRA_SP_Iguape.869230_TMYx.2009-2023.epw
//	inmet:
//	  - name: inmet_2019
//	    title: INMET 2019
//	    first_half: raw/inmet_raw/a712_iguape_2019a.csv
//	    second_half: raw/inmet_raw/a712_iguape_2019b.csv
//	periods: [horaria, diaria, semanal, mensal]
type Job struct {
	EPW     []EPWSource   `yaml:"epw"`
	INMET   []INMETSource `yaml:"inmet"`
	Periods []string      `yaml:"periods,omitempty"`
}

// EPWSource is one EPW file. NominalYear overrides EPW_NOMINAL_YEAR.
type EPWSource struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Path        string `yaml:"path"`
	NominalYear int    `yaml:"nominal_year,omitempty"`
}

// INMETSource is one station-year split into two half-year exports.
// Encoding overrides INMET_ENCODING.
type INMETSource struct {
	Name       string `yaml:"name"`
	Title      string `yaml:"title"`
	FirstHalf  string `yaml:"first_half"`
	SecondHalf string `yaml:"second_half"`
	Encoding   string `yaml:"encoding,omitempty"`
}

// LoadJob reads and validates a job file. Relative paths inside it are
// resolved against the file's directory.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: job file %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("read job file %s: %w", path, err)
	}

	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("%w: job file %s: %v", domain.ErrFormat, path, err)
	}
	if err := job.validate(); err != nil {
		return nil, fmt.Errorf("job file %s: %w", path, err)
	}

	base := filepath.Dir(path)
	for i := range job.EPW {
		job.EPW[i].Path = resolve(base, job.EPW[i].Path)
	}
	for i := range job.INMET {
		job.INMET[i].FirstHalf = resolve(base, job.INMET[i].FirstHalf)
		job.INMET[i].SecondHalf = resolve(base, job.INMET[i].SecondHalf)
	}
	return &job, nil
}

// ParsedPeriods returns the configured periods, or every period when none
// are listed.
func (j *Job) ParsedPeriods() ([]domain.Period, error) {
	if len(j.Periods) == 0 {
		return domain.AllPeriods(), nil
	}
	out := make([]domain.Period, 0, len(j.Periods))
	seen := make(map[domain.Period]bool, len(j.Periods))
	for _, s := range j.Periods {
		p, err := domain.ParsePeriod(s)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

func (j *Job) validate() error {
	if len(j.EPW)+len(j.INMET) == 0 {
		return fmt.Errorf("%w: no sources", domain.ErrSchema)
	}
	names := make(map[string]bool)
	check := func(kind, name string, paths ...string) error {
		if name == "" {
			return fmt.Errorf("%w: %s source without a name", domain.ErrSchema, kind)
		}
		if names[name] {
			return fmt.Errorf("%w: duplicate source name %q", domain.ErrSchema, name)
		}
		names[name] = true
		for _, p := range paths {
			if p == "" {
				return fmt.Errorf("%w: %s source %q is missing a path", domain.ErrSchema, kind, name)
			}
		}
		return nil
	}
	for _, s := range j.EPW {
		if err := check("epw", s.Name, s.Path); err != nil {
			return err
		}
	}
	for _, s := range j.INMET {
		if err := check("inmet", s.Name, s.FirstHalf, s.SecondHalf); err != nil {
			return err
		}
	}
	_, err := j.ParsedPeriods()
	return err
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
