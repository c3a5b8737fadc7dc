package config

import (
	"errors"
	"fmt"
	"io/fs"
	"runtime"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all run settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	JobFile   string
	ExportDir string
	Workers   int

	EPWNominalYear int
	INMETEncoding  string

	// AggregateApparentTemperature adds Sensacao_termica statistics to
	// every period table.
	AggregateApparentTemperature bool

	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// LoadDotEnv loads variables from a .env file without overriding ones
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	workers, err := parsePositiveInt("WORKERS", runtime.NumCPU())
	if err != nil {
		return nil, err
	}
	nominalYear, err := parsePositiveInt("EPW_NOMINAL_YEAR", 2001)
	if err != nil {
		return nil, err
	}
	if nominalYear > 9999 {
		return nil, errors.New("invalid EPW_NOMINAL_YEAR: must be 1-9999")
	}

	aggregateApparent, err := parseBool("AGGREGATE_APPARENT_TEMPERATURE", false)
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ""),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		JobFile:   sharedcfg.EnvOrDefault("JOB_FILE", "climate-job.yaml"),
		ExportDir: sharedcfg.EnvOrDefault("EXPORT_DIR", "raw/climate_csv"),
		Workers:   workers,

		EPWNominalYear: nominalYear,
		INMETEncoding:  sharedcfg.EnvOrDefault("INMET_ENCODING", "utf-8"),

		AggregateApparentTemperature: aggregateApparent,

		KafkaEnabled:   kafkaEnabled,
		KafkaBrokers:   sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "climate-aggregates"),
	}

	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.Itoa(fallback))
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseBool(key string, fallback bool) (bool, error) {
	s := sharedcfg.EnvOrDefault(key, strconv.FormatBool(fallback))
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", key)
	}
	return b, nil
}
