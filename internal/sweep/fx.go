package sweep

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/clubgate/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("sweep",
	fx.Provide(func(cfg config.Config) *redis.Client {
		if cfg.RedisAddr == "" {
			return nil
		}
		return redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
	}),
	fx.Provide(NewLocker),
	fx.Provide(New),
)
