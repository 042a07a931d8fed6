package bus

import (
	"context"

	"github.com/rs/zerolog/log"

	"ragforge/internal/config"
)

// Build returns a RedisBus when cfg.Redis.URL is set, falling back to an
// in-process MemoryBus for single-instance deployments.
func Build(ctx context.Context, cfg config.RedisConfig) (Bus, error) {
	if cfg.URL == "" {
		log.Warn().Msg("REDIS_URL not set, using in-process progress/cancellation bus (single instance only)")
		return NewMemoryBus(), nil
	}
	return NewRedisBus(ctx, cfg.URL)
}
