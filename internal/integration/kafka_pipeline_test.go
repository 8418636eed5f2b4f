//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/incident-elevation-etl/internal/adapter/csvsource"
	"github.com/couchcryptid/incident-elevation-etl/internal/adapter/kafka"
	pq "github.com/couchcryptid/incident-elevation-etl/internal/adapter/parquet"
	"github.com/couchcryptid/incident-elevation-etl/internal/config"
	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
	"github.com/couchcryptid/incident-elevation-etl/internal/observability"
	"github.com/couchcryptid/incident-elevation-etl/internal/pipeline"
)

const (
	testSinkTopic = "test-incidents"
	fixtureRows   = 80
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its bootstrap address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

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

// writeFixtureCSV writes an SFPD-shaped export with fixtureRows located
// incidents, one row with an unparsable datetime, and one without coordinates.
func writeFixtureCSV(t *testing.T) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("Incident ID,Incident Datetime,Report Datetime,Incident Time,Incident Day of Week,Incident Year,Incident Category,Latitude,Longitude,Police District\n")

	base := time.Date(2020, time.March, 2, 0, 0, 0, 0, time.UTC)
	weekdays := []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}
	for i := range fixtureRows {
		at := base.AddDate(i%4, 0, i%7).Add(time.Duration((i*5)%24)*time.Hour + time.Duration(i%3)*20*time.Minute)
		reported := at.Add(time.Duration(15+(i*29)%240) * time.Minute)
		category := "Fraud"
		if i%3 == 0 {
			category = "Assault"
		}
		fmt.Fprintf(&b, "%d,%s,%s,%s,%s,%d,%s,%.6f,%.6f,Central\n",
			100000+i,
			at.Format("2006/01/02 03:04:05 PM"),
			reported.Format("2006/01/02 03:04:05 PM"),
			at.Format("15:04"),
			weekdays[i%7],
			at.Year(),
			category,
			37.70+0.003*float64(i%17),
			-122.45+0.001*float64(i),
		)
	}
	b.WriteString("900001,not a date,2020/03/02 01:00:00 PM,??,Monday,2020,Fraud,37.75,-122.42,Central\n")
	b.WriteString("900002,2020/03/02 10:00:00 AM,2020/03/02 11:00:00 AM,10:00,Monday,2020,Fraud,,,Central\n")

	path := filepath.Join(t.TempDir(), "incidents.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

// slopeResolver rises 1 m for every 0.0003 degrees north of 37.70.
type slopeResolver struct{}

func (slopeResolver) ResolveElevation(_ context.Context, lat, _ float64) (float64, error) {
	return math.Round(10 + (lat-37.70)/0.0003), nil
}

type sinkMessage struct {
	Incident kafka.IncidentMessage
	Key      string
	Headers  map[string]string
}

func readSink(ctx context.Context, t *testing.T, consumer *kafkago.Reader) sinkMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var inc kafka.IncidentMessage
	require.NoError(t, json.Unmarshal(msg.Value, &inc), "unmarshal sink message")
	return sinkMessage{Incident: inc, Key: string(msg.Key), Headers: headers}
}

// TestPipelineEndToEnd runs the CSV loader, the pipeline, the Kafka writer,
// and the Parquet exporter together against a real broker.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSinkTopic)

	cfg := &config.Config{
		KafkaBrokers:   []string{broker},
		KafkaSinkTopic: testSinkTopic,
	}

	opts := pipeline.DefaultOptions()
	writer := kafka.NewWriter(cfg, opts.Binner, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	parquetDir := t.TempDir()
	p := pipeline.New(
		csvsource.NewLoader(writeFixtureCSV(t), discardLogger()),
		slopeResolver{},
		opts,
		discardLogger(),
		observability.NewMetricsForTesting(),
		pipeline.WithPublisher(writer),
		pipeline.WithExporter(pq.NewExporter(parquetDir, opts.Binner)),
	)

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixtureRows+2, res.Loaded)
	assert.Equal(t, 1, res.Derive.Unparsable)
	require.Len(t, res.Incidents, fixtureRows+1)
	for _, f := range res.Fits {
		assert.NoError(t, f.Err, f.Name)
	}

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	received := make(map[string]sinkMessage, len(res.Incidents))
	for len(received) < len(res.Incidents) {
		m := readSink(ctx, t, consumer)
		received[m.Key] = m
	}

	for _, inc := range res.Incidents {
		m, ok := received[inc.ID]
		require.True(t, ok, "incident %s not published", inc.ID)
		assert.Equal(t, string(inc.Category), m.Headers["category"])
		assert.Equal(t, res.RunID, m.Headers["run_id"])
		_, err := time.Parse(time.RFC3339, m.Headers["processed_at"])
		assert.NoError(t, err, "processed_at should be valid RFC3339")

		require.NotNil(t, m.Incident.Elevation)
		assert.InDelta(t, *inc.Elevation, *m.Incident.Elevation, 0)
		require.NotNil(t, m.Incident.ElevationBin)
		assert.Equal(t, opts.Binner.Index(*inc.Elevation), *m.Incident.ElevationBin)
	}
	assert.Contains(t, received, "900001", "unparsable datetime keeps the row")
	assert.NotContains(t, received, "900002", "rows without coordinates are not enriched")

	rows, err := parquet.ReadFile[pq.IncidentRow](filepath.Join(parquetDir, pq.IncidentsFile))
	require.NoError(t, err)
	assert.Len(t, rows, len(res.Incidents))

	bins, err := parquet.ReadFile[pq.BinRow](filepath.Join(parquetDir, pq.BinsFile))
	require.NoError(t, err)
	require.Len(t, bins, domain.DefaultBinner.Count)
	var total int64
	for _, b := range bins {
		total += b.IncidentCount
	}
	assert.Equal(t, int64(len(res.Incidents)), total)
}

// TestKafkaWriterUnreachableBroker verifies that a publish failure surfaces
// as a run error while the fitted models are still returned.
func TestKafkaWriterUnreachableBroker(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	writer := kafka.NewWriter(&config.Config{
		KafkaBrokers:   []string{"127.0.0.1:1"},
		KafkaSinkTopic: testSinkTopic,
	}, domain.DefaultBinner, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(
		csvsource.NewLoader(writeFixtureCSV(t), discardLogger()),
		slopeResolver{},
		pipeline.DefaultOptions(),
		discardLogger(),
		observability.NewMetricsForTesting(),
		pipeline.WithPublisher(writer),
	)

	res, err := p.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish incidents")
	require.NotNil(t, res)
	assert.Len(t, res.Fits, 3)
}
