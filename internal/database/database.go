package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/01moynul/netriver-marketplace/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// OpenDB initializes the primary read/write connection pool from configuration.
func OpenDB(cfg config.Database) (*sql.DB, error) {
	dsn, err := NormalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	return OpenDBWithDSN(dsn, cfg.MaxOpenConns)
}

// NormalizeDSN forces the options the store depends on: parsed DATETIME
// columns in UTC. Multi-statement support is always switched off.
func NormalizeDSN(dsn string) (string, error) {
	return normalizeDSN(dsn, false)
}

// MigrationDSN is NormalizeDSN with multi-statement support switched on, as
// migration files need. It is only ever used for the migration connection.
func MigrationDSN(dsn string) (string, error) {
	return normalizeDSN(dsn, true)
}

func normalizeDSN(dsn string, multiStatements bool) (string, error) {
	c, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse DSN: %w", err)
	}
	c.ParseTime = true
	c.MultiStatements = multiStatements
	c.Loc = time.UTC
	return c.FormatDSN(), nil
}

// OpenDBWithDSN creates and configures a connection pool for any DSN.
func OpenDBWithDSN(dsn string, maxOpen int) (*sql.DB, error) {
	// 1. Open a new connection pool.
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// 2. Configure the connection pool settings.
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen)
	db.SetConnMaxLifetime(5 * time.Minute)

	// 3. Ping the database to verify the connection.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	slog.Info("database connection pool established", "max_open_conns", maxOpen)
	return db, nil
}

// RunMigrations applies every pending migration. It opens its own connection
// because closing the migrator closes the pool it was given.
func RunMigrations(dsn string) error {
	dsn, err := MigrationDSN(dsn)
	if err != nil {
		return err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}

	driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
	if err != nil {
		db.Close()
		return fmt.Errorf("create migration driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	version, dirty, _ := m.Version()
	slog.Info("database migrations applied", "version", version, "dirty", dirty)
	return nil
}
