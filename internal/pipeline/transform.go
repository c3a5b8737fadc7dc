package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
)

// ClimateTransformer derives apparent temperature and resamples canonical
// frames into period tables.
type ClimateTransformer struct {
	aggregator *domain.Aggregator
	logger     *slog.Logger
}

// NewTransformer creates a ClimateTransformer. A nil aggregator uses the
// default statistic plan.
func NewTransformer(aggregator *domain.Aggregator, logger *slog.Logger) *ClimateTransformer {
	if aggregator == nil {
		aggregator = domain.NewAggregator(nil)
	}
	return &ClimateTransformer{aggregator: aggregator, logger: logger}
}

// Derive appends Sensacao_termica to a loaded frame.
func (t *ClimateTransformer) Derive(name string, f domain.Frame) (domain.Frame, error) {
	out, err := domain.DeriveApparentTemperature(f)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("table %s: %w", name, err)
	}
	return out, nil
}

// Aggregate resamples a derived frame at period p into the table
// {name}_{period}. An aggregation without rows is an error.
func (t *ClimateTransformer) Aggregate(src domain.NamedFrame, p domain.Period) (domain.NamedFrame, error) {
	table := TableName(src.Name, p)
	out, err := t.aggregator.Aggregate(table, src.Frame, p)
	if err != nil {
		return domain.NamedFrame{}, err
	}
	if out.Len() == 0 {
		return domain.NamedFrame{}, fmt.Errorf("%w: aggregated table %s is empty", domain.ErrEmpty, table)
	}
	t.logger.Debug("table aggregated", "table", table, "period", p.Code(), "rows", out.Len())
	return domain.NamedFrame{Name: table, Title: TableTitle(src.Title, p), Frame: out}, nil
}

// TableName is the export name of a source aggregated at p.
func TableName(source string, p domain.Period) string {
	return source + "_" + p.Name()
}

// TableTitle is the chart label of a source aggregated at p.
func TableTitle(source string, p domain.Period) string {
	return fmt.Sprintf("%s (%s)", source, p.Title())
}
