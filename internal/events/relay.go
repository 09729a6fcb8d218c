package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Publisher forwards an event downstream; *Producer implements it.
type Publisher interface {
	Publish(ctx context.Context, ev StockEvent) error
}

// Relay moves stock events from the Redis Stream outbox to Kafka.
// An entry is ACKed and deleted only after Publish succeeds.
type Relay struct {
	rdb       *rd.Client
	publisher Publisher

	stream   string
	group    string
	consumer string
}

func NewRelay(rdb *rd.Client, publisher Publisher, stream, group, consumer string) *Relay {
	return &Relay{
		rdb:       rdb,
		publisher: publisher,
		stream:    stream,
		group:     group,
		consumer:  consumer,
	}
}

// retryDelay is the pause after a Redis or Kafka failure.
const retryDelay = 300 * time.Millisecond

// Run relays until ctx is cancelled. Redis being down at startup or later
// only delays delivery: the group is (re)created once Redis answers again.
func (r *Relay) Run(ctx context.Context) {
	grouped := false
	for ctx.Err() == nil {
		if !grouped {
			if err := r.ensureGroup(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Warn("relay ensure group")
				wait(ctx, retryDelay)
				continue
			}
			grouped = true
		}

		// drain this consumer's pending entries before asking for new ones
		msgs, err := r.readGroup(ctx, "0", 0)
		if err == nil && len(msgs) == 0 {
			msgs, err = r.readGroup(ctx, ">", 2*time.Second)
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if isNoGroup(err) {
				grouped = false
			}
			log.WithError(err).Warn("relay read")
			wait(ctx, retryDelay)
			continue
		}

		for _, xm := range msgs {
			if err := r.processOne(ctx, xm); err != nil {
				log.WithError(err).WithField("id", xm.ID).Warn("relay process message")
				wait(ctx, 200*time.Millisecond)
				break
			}
		}
	}
}

// wait sleeps for d and reports false when ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// isNoGroup matches the error Redis returns after the stream or its group
// was lost, e.g. on a restart without persistence.
func isNoGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "NOGROUP")
}

func (r *Relay) ensureGroup(ctx context.Context) error {
	err := r.rdb.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (r *Relay) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := r.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, streamID},
		Count:    16,
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 16)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (r *Relay) processOne(ctx context.Context, xm rd.XMessage) error {
	ev, err := parseStockEvent(xm.Values)
	if err != nil {
		// malformed entries would block the stream forever
		if ackErr := r.ackAndDelete(ctx, xm.ID); ackErr != nil {
			return fmt.Errorf("parse failed: %v, ack failed: %w", err, ackErr)
		}
		log.WithError(err).WithField("id", xm.ID).Warn("relay dropped malformed entry")
		return nil
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := r.publisher.Publish(pubCtx, ev); err != nil {
		return err
	}
	return r.ackAndDelete(ctx, xm.ID)
}

func (r *Relay) ackAndDelete(ctx context.Context, id string) error {
	pipe := r.rdb.TxPipeline()
	pipe.XAck(ctx, r.stream, r.group, id)
	pipe.XDel(ctx, r.stream, id)
	_, err := pipe.Exec(ctx)
	return err
}
