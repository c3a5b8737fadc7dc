package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/couchcryptid/climate-data-etl/internal/config"
	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	// batchSize bounds the number of rows sent per WriteMessages call.
	batchSize = 500

	// batchTimeout caps how long a partial batch waits; every Write is
	// synchronous, so the writer never accumulates across calls.
	batchTimeout = 50 * time.Millisecond

	maxAttempts    = 3
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// messageWriter is the subset of *kafkago.Writer used here.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes table rows to a Kafka topic, one message per row.
// It implements pipeline.Sink.
type Writer struct {
	writer messageWriter
	runID  string
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic. Every
// message it sends carries the same run id.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    batchSize,
		BatchTimeout: batchTimeout,
	}
	return &Writer{writer: w, runID: uuid.NewString(), logger: logger}
}

func (w *Writer) Name() string { return "kafka" }

// RunID identifies the messages of this process.
func (w *Writer) RunID() string { return w.runID }

// Write serializes every row of the table and publishes them in batches.
// Rows of one table share a partition key prefix, so the hash balancer keeps
// each row's updates ordered.
func (w *Writer) Write(ctx context.Context, t domain.NamedFrame) error {
	if t.Frame.Len() == 0 {
		return nil
	}
	generatedAt := domain.Now()

	msgs := make([]kafkago.Message, 0, min(batchSize, t.Frame.Len()))
	for i := 0; i < t.Frame.Len(); i++ {
		msg, err := serializeRow(t, i, w.runID, generatedAt)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
		if len(msgs) == batchSize {
			if err := w.publish(ctx, msgs); err != nil {
				return fmt.Errorf("publish table %s: %w", t.Name, err)
			}
			msgs = msgs[:0]
		}
	}
	if len(msgs) > 0 {
		if err := w.publish(ctx, msgs); err != nil {
			return fmt.Errorf("publish table %s: %w", t.Name, err)
		}
	}

	w.logger.Debug("table published", "table", t.Name, "rows", t.Frame.Len(), "run_id", w.runID)
	return nil
}

// publish sends one batch, retrying with exponential backoff.
func (w *Writer) publish(ctx context.Context, msgs []kafkago.Message) error {
	backoff := initialBackoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = w.writer.WriteMessages(ctx, msgs...); err == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		w.logger.Warn("kafka publish failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = retry.NextBackoff(backoff, maxBackoff)
	}
	return err
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeRow marshals row i of the table into a Kafka message. The value
// is a flat JSON object keyed by column name with null for missing values.
func serializeRow(t domain.NamedFrame, i int, runID string, generatedAt time.Time) (kafkago.Message, error) {
	ts := t.Frame.Index()[i].UTC()
	row := map[string]any{
		domain.ColDatetime: ts.Format(time.RFC3339),
	}
	for _, c := range t.Frame.Columns() {
		if v, ok := t.Frame.Float(c); ok {
			if math.IsNaN(v[i]) || math.IsInf(v[i], 0) {
				row[c] = nil
			} else {
				row[c] = v[i]
			}
			continue
		}
		s, _ := t.Frame.Sector(c)
		if s[i].Valid() {
			row[c] = s[i].String()
		} else {
			row[c] = nil
		}
	}

	data, err := json.Marshal(row)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize table %s row %d: %w", t.Name, i, err)
	}
	return kafkago.Message{
		Key:   []byte(t.Name + "|" + ts.Format(time.RFC3339)),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "table", Value: []byte(t.Name)},
			{Key: "title", Value: []byte(t.Title)},
			{Key: "run_id", Value: []byte(runID)},
			{Key: "generated_at", Value: []byte(generatedAt.Format(time.RFC3339))},
		},
	}, nil
}
