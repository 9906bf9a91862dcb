package migration

import (
	"github.com/mentora-app/mentora/internal/config"
	gradingdomain "github.com/mentora-app/mentora/internal/grading/domain"
	quotadomain "github.com/mentora-app/mentora/internal/quota/domain"
	rubricdomain "github.com/mentora-app/mentora/internal/rubric/domain"
	usagelogdomain "github.com/mentora-app/mentora/internal/usagelog/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// SQL migrations target postgres; local sqlite/mysql setups
			// rely on the model definitions instead.
			return conn.AutoMigrate(
				&quotadomain.UsageQuota{},
				&gradingdomain.Submission{},
				&gradingdomain.Feedback{},
				&usagelogdomain.UsageLogEntry{},
				&rubricdomain.Rubric{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
