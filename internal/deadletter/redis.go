// Package deadletter keeps permanently failed events in a Redis list so
// they can be inspected and replayed by hand instead of retried
// automatically.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/example/order-event-pipeline/internal/event"
)

// RedisAPI is the subset of the Redis client the sink uses.
type RedisAPI interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// Record is the shape stored per dead-lettered event.
type Record struct {
	At              time.Time       `json:"at"`
	EventID         string          `json:"eventId"`
	CorrelationID   string          `json:"correlationId,omitempty"`
	OriginalID      string          `json:"originalId"`
	OriginalType    string          `json:"originalType"`
	OriginalPayload json.RawMessage `json:"originalPayload"`
	Error           string          `json:"error"`
	Attempts        int             `json:"attempts"`
}

// Sink writes dead-letter records to a Redis list.
type Sink struct {
	client  RedisAPI
	listKey string
	nowFunc func() time.Time
}

// NewSink returns a Sink pushing onto listKey.
func NewSink(client RedisAPI, listKey string) *Sink {
	if listKey == "" {
		listKey = "deadletter"
	}
	return &Sink{client: client, listKey: listKey, nowFunc: time.Now}
}

// Push stores one dead-lettered event.
func (s *Sink) Push(ctx context.Context, env event.Envelope, dl event.DeadLetter) error {
	rec := Record{
		At:              s.nowFunc().UTC(),
		EventID:         env.ID,
		CorrelationID:   env.CorrelationID,
		OriginalID:      dl.OriginalID,
		OriginalType:    dl.OriginalType,
		OriginalPayload: dl.OriginalPayload,
		Error:           dl.Error,
		Attempts:        dl.Attempts,
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dead-letter record: %w", err)
	}
	if err := s.client.LPush(ctx, s.listKey, b).Err(); err != nil {
		return fmt.Errorf("push dead-letter record: %w", err)
	}
	return nil
}
