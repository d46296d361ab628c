package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/rideflow/internal/models"
)

// HeartbeatProducer relays driver position reports onto Kafka for the
// consumer process to fold into the shared position tracker.
type HeartbeatProducer struct {
	writer *kafka.Writer
}

func NewHeartbeatProducer(brokers []string, topic string) *HeartbeatProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &HeartbeatProducer{writer: w}
}

func (p *HeartbeatProducer) Publish(hb models.Heartbeat) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(hb)
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(hb.DriverID), Value: b})
}

func (p *HeartbeatProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
