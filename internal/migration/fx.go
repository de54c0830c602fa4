package migration

import (
	"github.com/slipvault/slipvault/internal/config"
	identitydomain "github.com/slipvault/slipvault/internal/identity/domain"
	slipdomain "github.com/slipvault/slipvault/internal/slip/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// SQLite and MySQL are dev conveniences; gorm derives their
			// schema from the models.
			return conn.AutoMigrate(
				&identitydomain.Company{},
				&identitydomain.User{},
				&identitydomain.Session{},
				&slipdomain.Slip{},
				&slipdomain.Photo{},
				&slipdomain.Tag{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
