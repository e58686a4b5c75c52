package user

import (
	"github.com/smallbiznis/clubgate/internal/config"
	"github.com/smallbiznis/clubgate/internal/user/repository"
	"github.com/smallbiznis/clubgate/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) service.Config {
		return service.Config{LinkCodeTTL: cfg.LinkCodeTTL}
	}),
	fx.Provide(service.New),
)
