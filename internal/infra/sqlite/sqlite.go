package sqlite

import (
	"fmt"

	"github.com/sifan077/PowerStash/config"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a gorm.DB over a SQLite file. The pool is pinned to one
// connection so that concurrent handlers never interleave inside a write.
func Open(cfg config.SQLiteConfig) (*gorm.DB, error) {
	path := cfg.Path
	if path == "" {
		path = "files.db"
	}

	return open(path + "?_busy_timeout=5000&_foreign_keys=on")
}

// OpenMemory returns an isolated in-memory database, used by tests.
func OpenMemory() (*gorm.DB, error) {
	return open(":memory:")
}

func open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite: retrieve sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	return db, nil
}
