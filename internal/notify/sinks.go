package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// LogSink writes notifications to the service log. Used as the default
// sink and in demo mode.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, n Notification) Result {
	s.logger.Info("notification",
		zap.String("id", n.ID.String()),
		zap.String("type", n.Type),
		zap.Int("priority", int(n.Priority)),
		zap.String("target_id", n.TargetID),
		zap.String("message", n.Message),
	)
	return Delivered()
}

// RedisSink publishes notifications onto a Redis channel for downstream
// delivery workers to pick up.
type RedisSink struct {
	client  *redis.Client
	channel string
}

func NewRedisSink(client *redis.Client, channel string) *RedisSink {
	return &RedisSink{client: client, channel: channel}
}

func (s *RedisSink) Notify(ctx context.Context, n Notification) Result {
	data, err := json.Marshal(n)
	if err != nil {
		return Failed(fmt.Sprintf("marshal notification: %v", err))
	}
	if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
		return Failed(fmt.Sprintf("publish: %v", err))
	}
	return Delivered()
}

// MultiSink fans a notification out to every sink. The combined result
// is delivered only if every sink delivered; the first failure reason
// is reported.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, n Notification) Result {
	res := Delivered()
	for _, s := range m {
		if r := s.Notify(ctx, n); !r.Delivered && res.Delivered {
			res = r
		}
	}
	return res
}
