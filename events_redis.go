package goGate

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
)

// RedisStreamSink appends security events to a capped Redis stream via
// XADD MAXLEN ~, giving an append-only log that downstream consumers can
// tail with consumer groups. Emission is best-effort: a failed XADD is
// dropped silently, matching the sink contract that event delivery never
// fails a request.
type RedisStreamSink struct {
	redis  redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisStreamSink creates a [RedisStreamSink] writing to stream. maxLen
// bounds the stream approximately; zero or negative defaults to 100000.
func NewRedisStreamSink(redisClient redis.UniversalClient, stream string, maxLen int64) *RedisStreamSink {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &RedisStreamSink{redis: redisClient, stream: stream, maxLen: maxLen}
}

// Emit describes the emit operation and its observable behavior.
func (s *RedisStreamSink) Emit(ctx context.Context, event SecurityEvent) {
	if s == nil || s.redis == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	_ = s.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event_type": event.EventType,
			"user_id":    event.UserID,
			"payload":    payload,
		},
	}).Err()
}
