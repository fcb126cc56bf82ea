package db

import (
	"fmt"
	stlog "log" // GORM's logger.New expects a standard log.Logger
	"time"

	"github.com/rs/zerolog/log" // Use zerolog's global logger
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open initializes a database connection using the provided DSN.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	// Route GORM's logging through zerolog and align the levels.
	var gormLogLevel gormlogger.LogLevel
	switch log.Logger.GetLevel().String() {
	case "error", "fatal", "panic":
		gormLogLevel = gormlogger.Error
	case "warn":
		gormLogLevel = gormlogger.Warn
	case "debug", "trace":
		gormLogLevel = gormlogger.Info
	default:
		gormLogLevel = gormlogger.Warn
	}

	newLogger := gormlogger.New(
		stlog.New(log.Logger, "", stlog.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond, // matches gormlogger.Default
			LogLevel:                  gormLogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Msg("Database connection established")
	return database, nil
}

// Migrate runs GORM's AutoMigrate for the provided models.
func Migrate(database *gorm.DB, modelsToMigrate ...interface{}) error {
	if database == nil {
		return fmt.Errorf("database not initialized, call Open first")
	}
	if len(modelsToMigrate) == 0 {
		return fmt.Errorf("no models provided for migration")
	}

	if err := database.AutoMigrate(modelsToMigrate...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	log.Info().Int("models_migrated", len(modelsToMigrate)).Msg("Database migration completed")
	return nil
}
