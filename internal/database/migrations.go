package database

import (
	"log/slog"

	"docchat-backend/internal/database/versions/migration_0"
	"docchat-backend/internal/database/versions/migration_1"
	"docchat-backend/internal/database/versions/migration_2"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// Append only. Released migration IDs must never be edited.
var migrations = []*gormigrate.Migration{
	{ID: "0", Migrate: migration_0.Migration},
	{ID: "1", Migrate: migration_1.Migration, Rollback: migration_1.Rollback},
	{ID: "2", Migrate: migration_2.Migration, Rollback: migration_2.Rollback},
}

func GetMigrator(db *gorm.DB) *gormigrate.Gormigrate {
	migrator := gormigrate.New(db, gormigrate.DefaultOptions, migrations)

	// An empty database gets the current schema directly and every migration
	// above is recorded as applied.
	migrator.InitSchema(func(txn *gorm.DB) error {
		slog.Info("initializing empty database with current schema", "latest_migration", migrations[len(migrations)-1].ID)
		return txn.AutoMigrate(&Conversation{}, &Message{}, &Attachment{})
	})

	return migrator
}
