package migrations

import (
	"gorm.io/gorm"

	"github.com/jmylchreest/restreamer/internal/models"
)

// AllMigrations returns all registered migrations in order.
//   - 001: schema for media, streams, sessions and schedules
//   - 002: composite index used by the due-schedule poll
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002DueScheduleIndex(),
	}
}

func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Video{},
				&models.Playlist{},
				&models.PlaylistItem{},
				&models.Stream{},
				&models.StreamSession{},
				&models.StreamSchedule{},
			)
		},
		Down: func(tx *gorm.DB) error {
			for _, table := range []string{
				"stream_schedules",
				"stream_sessions",
				"streams",
				"playlist_items",
				"playlists",
				"videos",
			} {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

const dueIndex = "idx_stream_schedules_due"

func migration002DueScheduleIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Add due schedule index",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.StreamSchedule{}, dueIndex) {
				return nil
			}
			return tx.Exec("CREATE INDEX " + dueIndex + " ON stream_schedules (is_active, next_run_at)").Error
		},
		Down: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.StreamSchedule{}, dueIndex) {
				return tx.Migrator().DropIndex(&models.StreamSchedule{}, dueIndex)
			}
			return nil
		},
	}
}
