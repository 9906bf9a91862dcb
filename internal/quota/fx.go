package quota

import (
	"strings"

	"github.com/mentora-app/mentora/internal/config"
	"github.com/mentora-app/mentora/internal/quota/repository"
	"github.com/mentora-app/mentora/internal/quota/service"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("quota.service",
	fx.Provide(NewRedisClient),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

// NewRedisClient connects the accelerator store. An empty address disables it;
// the ledger then runs on the durable store alone.
func NewRedisClient(cfg config.Config) redis.Cmdable {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}
