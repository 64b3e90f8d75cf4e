// Package idempotency records which envelope ids have completed processing
// so redelivered messages can be acknowledged without re-running business
// logic.
//
// The store is deliberately best-effort: when Redis is unreachable it fails
// open (Seen reports false, MarkSeen is dropped) rather than wedging the
// pipeline. Under a store outage duplicate processing is possible; the
// system trades strict exactly-once for availability, and every degraded
// call is logged.
package idempotency

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// RedisAPI is the subset of the Redis client the store uses.
type RedisAPI interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Store tracks processed envelope ids with a bounded retention window.
type Store struct {
	client    RedisAPI
	keyPrefix string
	ttlWindow time.Duration // retention; must exceed the transport's max redelivery horizon
	nowFunc   func() time.Time
}

// NewStore returns a configured Store. ttlWindow bounds how long processed
// ids are remembered, e.g. 24*time.Hour.
func NewStore(client RedisAPI, keyPrefix string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		keyPrefix: keyPrefix,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Seen reports whether eventID has already been fully processed. A store
// failure is treated as "not seen" so processing can continue.
func (s *Store) Seen(ctx context.Context, eventID string) bool {
	n, err := s.client.Exists(ctx, s.key(eventID)).Result()
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("eventId", eventID).
			Msg("idempotency store degraded: treating event as not seen")
		return false
	}
	return n > 0
}

// MarkSeen records eventID as fully processed. Call only after the handler
// succeeded; a failed attempt must stay retryable. Store failures are
// logged and swallowed for the same availability reason as Seen.
func (s *Store) MarkSeen(ctx context.Context, eventID string) {
	marker := s.nowFunc().UTC().Format(time.RFC3339)
	if err := s.client.Set(ctx, s.key(eventID), marker, s.ttlWindow).Err(); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("eventId", eventID).
			Msg("idempotency store degraded: failed to mark event as seen")
	}
}

func (s *Store) key(eventID string) string {
	return s.keyPrefix + ":" + eventID
}
