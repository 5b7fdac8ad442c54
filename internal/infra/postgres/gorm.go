package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/sifan077/PowerStash/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultMaxOpenConns    = 10
	defaultConnMaxLifetime = 5 * time.Minute
	slowQueryThreshold     = 500 * time.Millisecond
)

// NewGorm opens the record store on Postgres. Slow statements and errors
// are reported through log; a nil log keeps gorm quiet.
func NewGorm(cfg config.PostgresConfig, log *zap.Logger) (*gorm.DB, error) {
	gormLogger := logger.Discard
	if log != nil {
		gormLogger = logger.New(zap.NewStdLog(log.With(zap.String("component", "gorm"))), logger.Config{
			SlowThreshold:             slowQueryThreshold,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(ConnString(cfg)), &gorm.Config{
		Logger: gormLogger,
		// Records reference storage-channel message ids, not each other.
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: open gorm connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres: retrieve sql db: %w", err)
	}

	maxOpen := defaultMaxOpenConns
	if cfg.MaxConns > 0 {
		maxOpen = int(cfg.MaxConns)
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	if cfg.MinConns > 0 {
		sqlDB.SetMaxIdleConns(int(cfg.MinConns))
	}

	lifetime := defaultConnMaxLifetime
	applyDuration(cfg.MaxConnLifetime, &lifetime)
	sqlDB.SetConnMaxLifetime(lifetime)

	var idle time.Duration
	applyDuration(cfg.MaxConnIdleTime, &idle)
	if idle > 0 {
		sqlDB.SetConnMaxIdleTime(idle)
	}

	return db, nil
}

// AutoMigrate creates missing tables and columns for models. Existing data
// is left alone, so it runs on every start for both drivers.
func AutoMigrate(ctx context.Context, db *gorm.DB, models ...interface{}) error {
	if db == nil || len(models) == 0 {
		return nil
	}

	if err := db.WithContext(ctx).AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}
