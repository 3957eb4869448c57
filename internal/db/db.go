package db

import (
	"log"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/suPer8Hu/vidblog/internal/models"
	"github.com/suPer8Hu/vidblog/internal/pipeline"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Dialector picks a gorm driver from the DSN shape:
// postgres:// or postgresql:// -> postgres, sqlite: or file: -> sqlite, anything else -> mysql.
func Dialector(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn)
	case strings.HasPrefix(dsn, "sqlite:"):
		return gormsqlite.Open(strings.TrimPrefix(dsn, "sqlite:"))
	case strings.HasPrefix(dsn, "file:"):
		return gormsqlite.Open(dsn)
	default:
		return mysql.Open(dsn)
	}
}

func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(Dialector(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// Connect opens the database and exits the process on failure.
func Connect(dsn string) *gorm.DB {
	gdb, err := Open(dsn)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

// Migrate creates or updates every table the service owns.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&models.PublishTarget{},
		&pipeline.Job{},
		&pipeline.BlogArtifact{},
	)
}
