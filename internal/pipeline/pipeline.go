package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
)

// Source loads one raw dataset into a canonical hourly frame.
type Source interface {
	Name() string
	Title() string
	Load(ctx context.Context) (domain.Frame, error)
}

// Sink receives every exported table.
type Sink interface {
	Name() string
	Write(ctx context.Context, t domain.NamedFrame) error
}

// Pipeline runs one batch: load every source, derive apparent temperature,
// aggregate each period table, then export the hourly and period tables.
type Pipeline struct {
	sources     []Source
	sinks       []Sink
	transformer *ClimateTransformer
	periods     []domain.Period
	workers     int
	logger      *slog.Logger
	metrics     *observability.Metrics

	ready  atomic.Bool
	mu     sync.Mutex
	tables []string
}

// New creates a Pipeline. Loads and aggregations run on at most workers
// goroutines; exports always happen in source order, then period order.
func New(sources []Source, sinks []Sink, t *ClimateTransformer, periods []domain.Period, workers int, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		sources:     sources,
		sinks:       sinks,
		transformer: t,
		periods:     periods,
		workers:     workers,
		logger:      logger,
		metrics:     metrics,
	}
}

// CheckReadiness returns nil once a run has completed successfully.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a run yet")
	}
	return nil
}

// Tables returns the names of the tables exported by the current or last
// run, in emit order.
func (p *Pipeline) Tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.tables)
}

// Run executes the batch. Any error stops the run and is returned wrapped
// with the source or table it concerns. Nothing is exported until every
// load and aggregation has succeeded, so only a sink failure can leave a
// partial export behind.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	if len(p.sources) == 0 {
		return fmt.Errorf("%w: no sources configured", domain.ErrEmpty)
	}

	p.ready.Store(false)
	p.mu.Lock()
	p.tables = nil
	p.mu.Unlock()

	start := domain.Now()
	p.logger.Info("pipeline started",
		"sources", len(p.sources),
		"periods", len(p.periods),
		"sinks", len(p.sinks),
		"workers", p.workers,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	defer func() {
		if err != nil {
			p.metrics.RunFailures.Inc()
		}
	}()

	hourly, err := p.loadAll(ctx)
	if err != nil {
		return err
	}
	aggregated, err := p.aggregateAll(ctx, hourly)
	if err != nil {
		return err
	}

	if err := p.emitAll(ctx, hourly); err != nil {
		return err
	}
	if err := p.emitAll(ctx, aggregated); err != nil {
		return err
	}

	p.ready.Store(true)
	p.metrics.LastSuccess.Set(float64(domain.Now().Unix()))
	p.logger.Info("pipeline finished",
		"tables", len(hourly)+len(aggregated),
		"duration", domain.Now().Sub(start),
	)
	return nil
}

// loadAll loads and derives every source concurrently. Results keep the
// source order.
func (p *Pipeline) loadAll(ctx context.Context) ([]domain.NamedFrame, error) {
	defer p.observe("load", domain.Now())

	out := make([]domain.NamedFrame, len(p.sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, src := range p.sources {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frame, err := src.Load(gctx)
			if err != nil {
				return fmt.Errorf("load %s: %w", src.Name(), err)
			}
			frame, err = p.transformer.Derive(src.Name(), frame)
			if err != nil {
				return err
			}
			p.metrics.RowsLoaded.WithLabelValues(src.Name()).Add(float64(frame.Len()))
			p.logger.Info("source loaded", "source", src.Name(), "rows", frame.Len())
			out[i] = domain.NamedFrame{Name: src.Name(), Title: src.Title(), Frame: frame}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// aggregateAll resamples every (source, period) pair concurrently. Results
// are ordered by source, then period.
func (p *Pipeline) aggregateAll(ctx context.Context, hourly []domain.NamedFrame) ([]domain.NamedFrame, error) {
	defer p.observe("aggregate", domain.Now())

	n := len(p.periods)
	out := make([]domain.NamedFrame, len(hourly)*n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, src := range hourly {
		for j, period := range p.periods {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				table, err := p.transformer.Aggregate(src, period)
				if err != nil {
					return err
				}
				p.metrics.RowsAggregated.WithLabelValues(period.Name()).Add(float64(table.Frame.Len()))
				out[i*n+j] = table
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// emitAll hands each table to every sink, in order.
func (p *Pipeline) emitAll(ctx context.Context, tables []domain.NamedFrame) error {
	defer p.observe("emit", domain.Now())

	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, sink := range p.sinks {
			if err := sink.Write(ctx, t); err != nil {
				p.metrics.SinkErrors.WithLabelValues(sink.Name()).Inc()
				return fmt.Errorf("sink %s table %s: %w", sink.Name(), t.Name, err)
			}
			p.metrics.TablesWritten.WithLabelValues(sink.Name()).Inc()
		}
		p.mu.Lock()
		p.tables = append(p.tables, t.Name)
		p.mu.Unlock()
	}
	return nil
}

// Close closes every sink that holds resources, reporting all failures.
func (p *Pipeline) Close() error {
	var result *multierror.Error
	for _, sink := range p.sinks {
		c, ok := sink.(io.Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close sink %s: %w", sink.Name(), err))
		}
	}
	return result.ErrorOrNil()
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.metrics.StageDuration.WithLabelValues(stage).Observe(domain.Now().Sub(start).Seconds())
}
