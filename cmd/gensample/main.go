// Command gensample writes a deterministic synthetic dataset: one EPW
// typical-year file, INMET half-year exports for a range of years, and a
// climate-job.yaml that points the ETL at them.
//
// Usage:
//
//	go run ./cmd/gensample -out raw -from 2019 -to 2021 -latin1
//	JOB_FILE=raw/climate-job.yaml go run ./cmd/climate
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/climate-data-etl/internal/adapter/epw"
	"github.com/couchcryptid/climate-data-etl/internal/adapter/inmet"
	"github.com/couchcryptid/climate-data-etl/internal/config"
	"github.com/couchcryptid/climate-data-etl/internal/sample"
)

const (
	epwDir   = "epw_raw"
	inmetDir = "inmet_raw"
	jobFile  = "climate-job.yaml"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "raw", "output directory")
	from := flag.Int("from", 2019, "first INMET year")
	to := flag.Int("to", 2020, "last INMET year")
	seed := flag.Uint64("seed", 42, "random seed")
	latin1 := flag.Bool("latin1", false, "encode INMET exports as ISO-8859-1, as the portal does")
	gaps := flag.Float64("gaps", 0.01, "per-hour chance of a missing INMET reading")
	flag.Parse()

	if *to < *from {
		flag.Usage()
		return fmt.Errorf("-to %d is before -from %d", *to, *from)
	}

	for _, dir := range []string{epwDir, inmetDir} {
		if err := os.MkdirAll(filepath.Join(*out, dir), 0o755); err != nil {
			return err
		}
	}

	job := config.Job{Periods: []string{"horaria", "diaria", "semanal", "mensal"}}

	epwName := "BRA_SP_Synthetic.000000_TMYx.2009-2023.epw"
	epwPath := filepath.Join(epwDir, epwName)
	hours := sample.NewGenerator(sample.Subtropical, *seed).Year(epw.DefaultNominalYear)
	if err := writeFile(filepath.Join(*out, epwPath), nil, func(w io.Writer) error {
		return sample.WriteEPW(w, hours, 2015)
	}); err != nil {
		return err
	}
	job.EPW = append(job.EPW, config.EPWSource{Name: "synthetic_epw", Title: "Synthetic EPW", Path: epwPath})
	log.Printf("%s: %d hours", epwPath, len(hours))

	climate := sample.Subtropical
	climate.GapChance = *gaps
	encoding := string(inmet.EncodingUTF8)
	var enc *charmap.Charmap
	if *latin1 {
		enc = charmap.ISO8859_1
		encoding = string(inmet.EncodingLatin1)
	}

	for year := *from; year <= *to; year++ {
		gen := sample.NewGenerator(climate, *seed+uint64(year))
		first, second := sample.SplitHalves(gen.Year(year))

		src := config.INMETSource{
			Name:     fmt.Sprintf("inmet_%d", year),
			Title:    fmt.Sprintf("INMET %d", year),
			Encoding: encoding,
		}
		for _, half := range []struct {
			suffix string
			hours  []sample.Hour
			path   *string
		}{
			{"a", first, &src.FirstHalf},
			{"b", second, &src.SecondHalf},
		} {
			*half.path = filepath.Join(inmetDir, fmt.Sprintf("a712_iguape_%d%s.csv", year, half.suffix))
			if err := writeFile(filepath.Join(*out, *half.path), enc, func(w io.Writer) error {
				return sample.WriteINMET(w, sample.DefaultStation, half.hours)
			}); err != nil {
				return err
			}
			log.Printf("%s: %d hours", *half.path, len(half.hours))
		}
		job.INMET = append(job.INMET, src)
	}

	data, err := yaml.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	jobPath := filepath.Join(*out, jobFile)
	if err := os.WriteFile(jobPath, data, 0o644); err != nil {
		return err
	}
	log.Printf("wrote %s with %d sources", jobPath, len(job.EPW)+len(job.INMET))
	return nil
}

// writeFile creates path and streams content into it, encoded with enc when
// enc is non-nil.
func writeFile(path string, enc *charmap.Charmap, content func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if enc == nil {
		if err := content(f); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		return nil
	}
	tw := transform.NewWriter(f, enc.NewEncoder())
	if err := content(tw); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return tw.Close()
}
