package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// Producer wraps the Kafka writer for stock events.
type Producer struct {
	w *kafka.Writer
}

// NewProducer keys messages by product name so one product's changes stay
// on one partition, in order.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (p *Producer) Close() error { return p.w.Close() }

// Publish writes one event synchronously.
func (p *Producer) Publish(ctx context.Context, ev StockEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "marshal stock event")
	}
	return errors.Wrap(p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ProductName),
		Value: b,
	}), "write stock event")
}
