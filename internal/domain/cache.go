package domain

import (
	"context"
	"time"
)

// LockManager guards a market against concurrent hedge execution by
// several engine processes. unlock releases the lock early; otherwise it
// lapses after ttl.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one stored lifecycle event with its stream id, the
// cursor for the next read.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus carries encoded lifecycle events. Publish feeds live
// subscribers such as the dashboard relay; the stream keeps a bounded
// history that /api/events replays from a cursor.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
