package events

import (
	"context"

	"github.com/pkg/errors"
	rd "github.com/redis/go-redis/v9"
)

// StreamSink appends stock events to a Redis Stream that the Relay drains.
type StreamSink struct {
	rdb    *rd.Client
	stream string
	maxLen int64
}

// NewStreamSink caps the stream at roughly maxLen entries; 0 means uncapped.
func NewStreamSink(rdb *rd.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{rdb: rdb, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Emit(ctx context.Context, ev StockEvent) error {
	args := &rd.XAddArgs{
		Stream: s.stream,
		Values: ev.streamValues(),
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return errors.Wrap(s.rdb.XAdd(ctx, args).Err(), "append stock event")
}

// NopSink drops events; used when streaming is disabled.
type NopSink struct{}

func (NopSink) Emit(context.Context, StockEvent) error { return nil }
