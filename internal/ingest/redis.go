package ingest

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/trafficwatch/backend/internal/config"
)

// Submitter is satisfied by *Endpoint.
type Submitter interface {
	Submit(raw []byte) (Ack, error)
}

// RedisSource feeds payloads published on a Redis channel through the same
// validation as POST /receive.
type RedisSource struct {
	client  *redis.Client
	channel string
	sub     Submitter
}

func NewRedisSource(cfg config.RedisConfig, sub Submitter) *RedisSource {
	return &RedisSource{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
			Protocol: 2,
		}),
		channel: cfg.Channel,
		sub:     sub,
	}
}

// Run subscribes and consumes until ctx is cancelled.
func (s *RedisSource) Run(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, s.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	ch := pubsub.Channel()
	log.Info().Str("channel", s.channel).Msg("redis ingest subscribed")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handle(msg.Payload)
		}
	}
}

func (s *RedisSource) handle(payload string) {
	if _, err := s.sub.Submit([]byte(payload)); err != nil {
		log.Warn().Err(err).Str("channel", s.channel).Msg("redis payload rejected")
	}
}

func (s *RedisSource) Close() error {
	return s.client.Close()
}
