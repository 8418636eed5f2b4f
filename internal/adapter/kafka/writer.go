package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/incident-elevation-etl/internal/config"
	"github.com/couchcryptid/incident-elevation-etl/internal/domain"
)

// IncidentMessage is the JSON payload published for each enriched incident.
type IncidentMessage struct {
	ID             string   `json:"id"`
	Category       string   `json:"category"`
	Lat            *float64 `json:"lat,omitempty"`
	Lon            *float64 `json:"lon,omitempty"`
	Year           *int     `json:"incident_year,omitempty"`
	DayNumber      int      `json:"day_number"`
	HourBucket     *int     `json:"hour_bucket,omitempty"`
	LatencyMinutes *float64 `json:"latency_minutes,omitempty"`
	Elevation      *float64 `json:"elevation,omitempty"`
	ElevationBin   *int     `json:"elevation_bin,omitempty"`
	RunID          string   `json:"run_id"`
	ProcessedAt    string   `json:"processed_at"`
}

// Writer produces enriched incidents to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	binner domain.Binner
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic. Published
// elevation_bin values use binner, which should match the run's binning.
func NewWriter(cfg *config.Config, binner domain.Binner, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, binner: binner, logger: logger}
}

// Publish serializes and writes all incidents in a single WriteMessages call.
func (w *Writer) Publish(ctx context.Context, runID string, processedAt time.Time, incidents []domain.EnrichedIncident) error {
	if len(incidents) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(incidents))
	for i := range incidents {
		msg, err := serializeToMessage(incidents[i], w.binner, runID, processedAt)
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d incidents: %w", len(msgs), err)
	}
	w.logger.Info("published enriched incidents", "topic", w.writer.Topic, "count", len(msgs), "run_id", runID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// NewIncidentMessage flattens an enriched incident into its wire form.
func NewIncidentMessage(inc domain.EnrichedIncident, binner domain.Binner, runID string, processedAt time.Time) IncidentMessage {
	msg := IncidentMessage{
		ID:             inc.ID,
		Category:       string(inc.Category),
		Year:           inc.Year,
		DayNumber:      inc.DayNumber,
		HourBucket:     inc.HourBucket,
		LatencyMinutes: inc.LatencyMinutes,
		Elevation:      inc.Elevation,
		RunID:          runID,
		ProcessedAt:    processedAt.UTC().Format(time.RFC3339),
	}
	if inc.Location != nil {
		lat, lon := inc.Lat(), inc.Lon()
		msg.Lat, msg.Lon = &lat, &lon
	}
	if inc.Elevation != nil {
		bin := binner.Index(*inc.Elevation)
		msg.ElevationBin = &bin
	}
	return msg
}

// serializeToMessage marshals an enriched incident into a Kafka message keyed by incident ID.
func serializeToMessage(inc domain.EnrichedIncident, binner domain.Binner, runID string, processedAt time.Time) (kafkago.Message, error) {
	payload := NewIncidentMessage(inc, binner, runID, processedAt)
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize incident %s: %w", inc.ID, err)
	}
	return kafkago.Message{
		Key:   []byte(inc.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(inc.Category)},
			{Key: "run_id", Value: []byte(runID)},
			{Key: "processed_at", Value: []byte(payload.ProcessedAt)},
		},
	}, nil
}
