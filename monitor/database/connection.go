package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"wallet-sentry/shared/env"
)

func ConnectToDatabase(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Printf("ERROR: Failed to connect to the database using DSN: %v", err)
		return nil, err
	}
	log.Println("INFO: Database connection successful.")
	return db, nil
}

// ResolveDSN builds the connection string from DATABASE_URL or the PG*
// variables, in that order of preference.
func ResolveDSN() (string, error) {
	if env.DATABASE_URL != "" {
		return env.DATABASE_URL, nil
	}
	if env.PGHOST == "" || env.PGPORT == "" || env.PGUSER == "" || env.PGDATABASE == "" {
		return "", fmt.Errorf("essential database connection variables are missing (DATABASE_URL or PG*)")
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		env.PGHOST, env.PGUSER, env.PGPASSWORD, env.PGDATABASE, env.PGPORT), nil
}
