package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"gorm.io/gorm"

	"wallet-sentry/monitor/internal/models"
)

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("migrate: "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// MigrateDatabase brings the schema up to date. GORM AutoMigrate covers
// columns for the models; the SQL migrations own the unique indexes the
// dedup and watchlist invariants depend on, so they run even when a
// migration tool was never pointed at this database before.
func MigrateDatabase(db *gorm.DB, dsn string) error {
	log.Println("Running GORM migrations...")
	err := db.AutoMigrate(&models.User{}, &models.WatchlistItem{}, &models.TransactionAlert{})
	if err != nil {
		return fmt.Errorf("gorm auto-migration failed: %w", err)
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("opening sql connection for migrations: %w", err)
	}
	defer sqlDB.Close()

	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://migrations/", "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	log.Println("Database migrations completed.")
	return nil
}
