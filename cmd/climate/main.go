package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/climate-data-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/climate-data-etl/internal/adapter/epw"
	httpadapter "github.com/couchcryptid/climate-data-etl/internal/adapter/http"
	"github.com/couchcryptid/climate-data-etl/internal/adapter/inmet"
	kafkaadapter "github.com/couchcryptid/climate-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/climate-data-etl/internal/config"
	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
	"github.com/couchcryptid/climate-data-etl/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := config.LoadDotEnv(".env"); err != nil {
		slog.Error("failed to load .env", "error", err)
		return 1
	}
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	job, err := config.LoadJob(cfg.JobFile)
	if err != nil {
		logger.Error("failed to load job", "error", err)
		return 1
	}
	periods, err := job.ParsedPeriods()
	if err != nil {
		logger.Error("failed to parse periods", "error", err)
		return 1
	}
	sources, err := buildSources(cfg, job, logger)
	if err != nil {
		logger.Error("failed to configure sources", "error", err)
		return 1
	}

	sinks := []pipeline.Sink{csvfile.NewWriter(cfg.ExportDir, logger)}
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, writer)
		logger.Info("kafka sink enabled", "topic", cfg.KafkaSinkTopic, "run_id", writer.RunID())
	} else {
		logger.Info("kafka sink disabled")
	}

	aggregator := domain.NewAggregator(domain.BuildPlan(cfg.AggregateApparentTemperature))
	transformer := pipeline.NewTransformer(aggregator, logger)
	p := pipeline.New(sources, sinks, transformer, periods, cfg.Workers, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The HTTP server is optional; a batch run does not need one.
	var srv *httpadapter.Server
	if cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(cfg.HTTPAddr, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	runErr := p.Run(ctx)
	if runErr != nil {
		logger.Error("pipeline error", "error", runErr)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	if err := p.Close(); err != nil {
		logger.Error("sink close error", "error", err)
	}

	if runErr != nil {
		return 1
	}
	logger.Info("shutdown complete", "tables", len(p.Tables()), "export_dir", cfg.ExportDir)
	return 0
}

// buildSources creates one loader per job entry, EPW first, in file order.
func buildSources(cfg *config.Config, job *config.Job, logger *slog.Logger) ([]pipeline.Source, error) {
	sources := make([]pipeline.Source, 0, len(job.EPW)+len(job.INMET))
	for _, s := range job.EPW {
		year := s.NominalYear
		if year == 0 {
			year = cfg.EPWNominalYear
		}
		sources = append(sources, epw.NewLoader(s.Name, s.Title, s.Path, year, logger))
	}
	for _, s := range job.INMET {
		name := s.Encoding
		if name == "" {
			name = cfg.INMETEncoding
		}
		enc, err := inmet.ParseEncoding(name)
		if err != nil {
			return nil, fmt.Errorf("inmet source %s: %w", s.Name, err)
		}
		sources = append(sources, inmet.NewLoader(s.Name, s.Title, s.FirstHalf, s.SecondHalf, enc, logger))
	}
	return sources, nil
}
