// Package migrations provides database migration management for dashingest.
package migrations

import (
	"fmt"

	"github.com/jmylchreest/dashingest/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
// - 001: Schema creation using GORM AutoMigrate
// - 002: Composite index for per-job task status lookups
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002TaskStatusIndex(),
	}
}

// schemaModels lists every table in dependency order.
func schemaModels() []any {
	return []any{
		// Queue
		&models.Job{},
		&models.Task{},
		&models.QueueSchedule{},

		// Catalog
		&models.CatalogFolder{},
		&models.CatalogVideo{},

		// Configuration
		&models.Setting{},
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(schemaModels()...)
		},
		Down: func(tx *gorm.DB) error {
			tables := schemaModels()
			for i := len(tables) - 1; i >= 0; i-- {
				if err := tx.Migrator().DropTable(tables[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

const taskStatusIndex = "idx_tasks_job_status"

// migration002TaskStatusIndex speeds up the runnable-task and restart queries,
// which always filter by job and status together.
func migration002TaskStatusIndex() Migration {
	return Migration{
		Version:     "002",
		Description: "Add composite index on tasks (job_id, status)",
		Up: func(tx *gorm.DB) error {
			if tx.Migrator().HasIndex(&models.Task{}, taskStatusIndex) {
				return nil
			}
			if err := tx.Exec(fmt.Sprintf("CREATE INDEX %s ON tasks (job_id, status)", taskStatusIndex)).Error; err != nil {
				return fmt.Errorf("creating %s: %w", taskStatusIndex, err)
			}
			return nil
		},
		Down: func(tx *gorm.DB) error {
			if !tx.Migrator().HasIndex(&models.Task{}, taskStatusIndex) {
				return nil
			}
			return tx.Migrator().DropIndex(&models.Task{}, taskStatusIndex)
		},
	}
}
