package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"vox-chat/config"
	"vox-chat/internal/repository"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Connect opens the configured database and returns it with the dialect the
// repository layer should use.
func Connect(cfg *config.Config) (*sql.DB, repository.Dialect, error) {
	var (
		db      *sql.DB
		dialect repository.Dialect
		err     error
	)
	switch cfg.DBDriver {
	case config.DriverPostgres:
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
		db, err = sql.Open("pgx", dsn)
		dialect = repository.DialectPostgres
	case config.DriverSQLite, "":
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, "", fmt.Errorf("create database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", sqliteDSN(cfg.DBPath))
		dialect = repository.DialectSQLite
	default:
		return nil, "", fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == repository.DialectSQLite {
		// sqlite has a single writer.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxIdleConns(10)
		db.SetMaxOpenConns(100)
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Printf("Database connection established (%s)", dialect)
	return db, dialect, nil
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}
