package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/delivery-broadcast/internal/models"
)

// LocationPublisher streams resolved driver locations to the fleet's
// telemetry topic. Optional: the agent only constructs one when brokers
// are configured.
type LocationPublisher struct {
	writer *kafka.Writer
}

func NewLocationPublisher(brokers []string, topic string) *LocationPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &LocationPublisher{writer: w}
}

type locationRecord struct {
	DriverID string                `json:"driver_id"`
	Coord    models.Coord          `json:"coord"`
	Source   models.LocationSource `json:"source"`
	SentAt   time.Time             `json:"sent_at"`
}

// PublishLocation is best-effort telemetry; the caller logs failures but
// never blocks broadcast handling on them.
func (p *LocationPublisher) PublishLocation(driverID string, loc models.DriverLocation) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	b, err := json.Marshal(locationRecord{
		DriverID: driverID,
		Coord:    loc.Coord,
		Source:   loc.Source,
		SentAt:   time.Now(),
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(driverID), Value: b})
}

func (p *LocationPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
