package access

import (
	"github.com/smallbiznis/clubgate/internal/access/repository"
	"github.com/smallbiznis/clubgate/internal/access/service"
	"github.com/smallbiznis/clubgate/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("access.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) service.Config {
		return service.Config{GroupChatID: cfg.Telegram.GroupChatID}
	}),
	fx.Provide(service.New),
)
