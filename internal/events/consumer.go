package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"pharmacy_inventory/internal/model"
)

// ErrMalformedEvent marks messages that can never be recorded.
var ErrMalformedEvent = errors.New("malformed stock event")

// AuditRecorder persists stock audits; *store.Store implements it.
type AuditRecorder interface {
	RecordAudit(ctx context.Context, a *model.StockAudit) error
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer turns Kafka stock events into audit rows. Offsets are committed
// only after the audit is stored or the message is found malformed.
type Consumer struct {
	r        messageReader
	recorder AuditRecorder
}

func NewConsumer(brokers []string, topic, groupID string, recorder AuditRecorder) *Consumer {
	return &Consumer{
		r: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 1e3,
			MaxBytes: 1e6,
		}),
		recorder: recorder,
	}
}

func (c *Consumer) Close() error { return c.r.Close() }

// Run blocks until ctx is cancelled. Broker and storage failures are retried.
func (c *Consumer) Run(ctx context.Context) {
	for ctx.Err() == nil {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.WithError(err).Warn("stock event consumer fetch")
			wait(ctx, retryDelay)
			continue
		}

		// the reader does not hand out m again, so retry it here
		for {
			err := c.handle(ctx, m.Value)
			if err == nil {
				break
			}
			entry := log.WithError(err).WithField("offset", m.Offset)
			if errors.Is(err, ErrMalformedEvent) {
				entry.Warn("stock event consumer dropped malformed message")
				break
			}
			entry.Warn("stock event consumer record audit")
			if !wait(ctx, retryDelay) {
				return
			}
		}

		if err := c.r.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			// redelivery is absorbed by RecordAudit
			log.WithError(err).WithField("offset", m.Offset).Warn("stock event consumer commit")
		}
	}
}

// handle records one message. Redelivered events are absorbed by RecordAudit.
func (c *Consumer) handle(ctx context.Context, value []byte) error {
	var ev StockEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return c.recorder.RecordAudit(ctx, ev.Audit())
}
