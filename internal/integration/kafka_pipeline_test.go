//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/climate-data-etl/internal/adapter/csvfile"
	"github.com/couchcryptid/climate-data-etl/internal/adapter/epw"
	"github.com/couchcryptid/climate-data-etl/internal/adapter/inmet"
	"github.com/couchcryptid/climate-data-etl/internal/adapter/kafka"
	"github.com/couchcryptid/climate-data-etl/internal/config"
	"github.com/couchcryptid/climate-data-etl/internal/domain"
	"github.com/couchcryptid/climate-data-etl/internal/observability"
	"github.com/couchcryptid/climate-data-etl/internal/pipeline"
	"github.com/couchcryptid/climate-data-etl/internal/sample"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testSinkTopic = "test-climate-aggregates"

// publishedRow holds a deserialized message read from the sink topic.
type publishedRow struct {
	Row     map[string]any
	Key     string
	Headers map[string]string
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// readPublished reads a single message from the sink consumer and deserializes it.
func readPublished(ctx context.Context, t *testing.T, consumer *kafkago.Reader) publishedRow {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var row map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &row), "unmarshal sink message")

	return publishedRow{Row: row, Key: string(msg.Key), Headers: headers}
}

// writeFixtures generates three EPW days and an INMET pair straddling the
// half-year boundary, returning the sources that read them.
func writeFixtures(t *testing.T) []pipeline.Source {
	t.Helper()
	dir := t.TempDir()

	epwPath := filepath.Join(dir, "synthetic.epw")
	epwHours := sample.NewGenerator(sample.Subtropical, 1).
		Hours(time.Date(epw.DefaultNominalYear, time.January, 1, 0, 0, 0, 0, time.UTC), 72)
	writeFile(t, epwPath, func(w io.Writer) error { return sample.WriteEPW(w, epwHours, 2015) })

	first, second := sample.SplitHalves(sample.NewGenerator(sample.Subtropical, 2).
		Hours(time.Date(2020, time.June, 30, 0, 0, 0, 0, time.UTC), 48))
	firstPath := filepath.Join(dir, "a712_2020a.csv")
	secondPath := filepath.Join(dir, "a712_2020b.csv")
	writeFile(t, firstPath, func(w io.Writer) error { return sample.WriteINMET(w, sample.DefaultStation, first) })
	writeFile(t, secondPath, func(w io.Writer) error { return sample.WriteINMET(w, sample.DefaultStation, second) })

	return []pipeline.Source{
		epw.NewLoader("synthetic_epw", "Synthetic EPW", epwPath, epw.DefaultNominalYear, discardLogger()),
		inmet.NewLoader("inmet_2020", "INMET 2020", firstPath, secondPath, inmet.EncodingUTF8, discardLogger()),
	}
}

func writeFile(t *testing.T, path string, content func(io.Writer) error) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, content(f))
}

// TestKafkaWriter verifies that kafka.Writer publishes one keyed message per
// row with table metadata headers.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	day := time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)
	frame := domain.NewFrame([]time.Time{day, day.AddDate(0, 0, 1)})
	frame, err := frame.WithFloat("Temp_max", []float64{31.2, 29.8})
	require.NoError(t, err)
	frame, err = frame.WithSector("Ori_vento_moda", []domain.Sector{domain.SectorSE, domain.SectorMissing})
	require.NoError(t, err)

	table := domain.NamedFrame{Name: "inmet_2019_diaria", Title: "INMET 2019 (diária)", Frame: frame}
	require.NoError(t, writer.Write(ctx, table))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-writer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	first := readPublished(ctx, t, consumer)
	assert.Equal(t, "inmet_2019_diaria|2019-01-01T00:00:00Z", first.Key)
	assert.Equal(t, "inmet_2019_diaria", first.Headers["table"])
	assert.Equal(t, "INMET 2019 (diária)", first.Headers["title"])
	assert.Equal(t, writer.RunID(), first.Headers["run_id"])
	_, err = time.Parse(time.RFC3339, first.Headers["generated_at"])
	assert.NoError(t, err, "generated_at should be valid RFC3339")
	assert.Equal(t, "2019-01-01T00:00:00Z", first.Row["Datetime"])
	assert.InDelta(t, 31.2, first.Row["Temp_max"], 1e-9)
	assert.Equal(t, "SE", first.Row["Ori_vento_moda"])

	second := readPublished(ctx, t, consumer)
	assert.Equal(t, "inmet_2019_diaria|2019-01-02T00:00:00Z", second.Key)
	assert.Nil(t, second.Row["Ori_vento_moda"])
}

// TestPipelineEndToEnd runs the full batch over generated raw files with
// both the CSV and Kafka sinks, and checks that every exported row reached
// the topic.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaSinkTopic: testSinkTopic}
	kafkaSink := kafka.NewWriter(cfg, discardLogger())
	exportDir := t.TempDir()
	csvSink := csvfile.NewWriter(exportDir, discardLogger())

	periods := []domain.Period{domain.Daily, domain.Monthly}
	p := pipeline.New(
		writeFixtures(t),
		[]pipeline.Sink{csvSink, kafkaSink},
		pipeline.NewTransformer(nil, discardLogger()),
		periods, 2, discardLogger(), observability.NewMetricsForTesting(),
	)
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.Run(ctx))
	require.NoError(t, p.CheckReadiness(ctx))

	want := map[string]int{
		"synthetic_epw":        72,
		"synthetic_epw_diaria": 3,
		"synthetic_epw_mensal": 1,
		"inmet_2020":           48,
		"inmet_2020_diaria":    2,
		"inmet_2020_mensal":    2,
	}
	assert.Equal(t, []string{
		"synthetic_epw", "inmet_2020",
		"synthetic_epw_diaria", "synthetic_epw_mensal",
		"inmet_2020_diaria", "inmet_2020_mensal",
	}, p.Tables())

	total := 0
	for table, rows := range want {
		total += rows
		f, err := csvfile.ReadFile(csvSink.Path(table))
		require.NoError(t, err, table)
		assert.Equal(t, rows, f.Len(), table)
	}

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-pipeline-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	got := make(map[string]int)
	for range total {
		msg := readPublished(ctx, t, consumer)
		got[msg.Headers["table"]]++
		assert.Equal(t, kafkaSink.RunID(), msg.Headers["run_id"])
		assert.Contains(t, msg.Row, "Datetime")
	}
	assert.Equal(t, want, got)

	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no extra messages on the sink topic")
}
