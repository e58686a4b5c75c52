package migration

import (
	accessdomain "github.com/smallbiznis/clubgate/internal/access/domain"
	"github.com/smallbiznis/clubgate/internal/config"
	subscriptiondomain "github.com/smallbiznis/clubgate/internal/subscription/domain"
	userdomain "github.com/smallbiznis/clubgate/internal/user/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// golang-migrate files target postgres; other dialects (sqlite in
			// tests, mysql in dev) get the schema from the models directly.
			return conn.AutoMigrate(
				&userdomain.User{},
				&userdomain.LinkCode{},
				&subscriptiondomain.Subscription{},
				&accessdomain.AccessGrant{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
