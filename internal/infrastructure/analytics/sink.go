package analytics

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/meterline/meterline/internal/domain/metering"
	"github.com/meterline/meterline/internal/shared/logger"
)

// RedisStreamSink publishes accepted usage events onto a redis stream for
// downstream consumers. The stream is capped; the database row is the
// durable record, so trimming old entries loses nothing.
type RedisStreamSink struct {
	client    *redis.Client
	streamKey string
	maxLen    int64
	logger    logger.Interface
}

// NewRedisStreamSink creates a new RedisStreamSink.
func NewRedisStreamSink(client *redis.Client, streamKey string, maxLen int64, logger logger.Interface) *RedisStreamSink {
	if maxLen <= 0 {
		maxLen = 1024
	}
	return &RedisStreamSink{
		client:    client,
		streamKey: streamKey,
		maxLen:    maxLen,
		logger:    logger,
	}
}

func (s *RedisStreamSink) Publish(ctx context.Context, ev *metering.UsageEvent) error {
	err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamKey,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"sid":             ev.SID(),
			"customer_id":     ev.CustomerID(),
			"feature_slug":    ev.FeatureSlug(),
			"usage":           ev.Usage().String(),
			"idempotence_key": ev.IdempotenceKey(),
			"timestamp":       ev.Timestamp().UnixMilli(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish usage event to stream: %w", err)
	}
	return nil
}
