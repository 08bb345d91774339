// Package sqlstore implements the file-record repository over database/sql
// for SQLite, PostgreSQL and MySQL. SQL is written once with ? placeholders
// and rebound per dialect; the dialects only diverge in the time-bucketing
// expressions used by the statistics queries.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fenwehome/telegram-files/internal/config"
	"github.com/fenwehome/telegram-files/internal/logger"
)

const (
	captionCacheSize = 512
	captionCacheTTL  = 10 * time.Minute
)

type Storage struct {
	db      *sql.DB
	dialect Dialect
	// captions caches resolved album captions per repository instance,
	// bounded in size and age.
	captions *lru.LRU[int64, string]
	locks    keyMutex
}

func New(cfg *config.Config) (*Storage, error) {
	return Open(Dialect(cfg.Database.Dialect), cfg.Database.DSN())
}

func Open(dialect Dialect, dsn string) (*Storage, error) {
	driver, err := dialect.driverName()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Storage{
		db:       db,
		dialect:  dialect,
		captions: lru.NewLRU[int64, string](captionCacheSize, nil, captionCacheTTL),
	}, nil
}

func (s *Storage) Cleanup() error {
	return s.db.Close()
}

// Migrate applies the embedded schema migrations for the storage's dialect.
func (s *Storage) Migrate() error {
	src, err := iofs.New(migrationsFS, "migrations/"+string(s.dialect))
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	var driver database.Driver
	switch s.dialect {
	case DialectPostgres:
		driver, err = migratepg.WithInstance(s.db, &migratepg.Config{})
	case DialectMySQL:
		driver, err = migratemysql.WithInstance(s.db, &migratemysql.Config{})
	default:
		driver, err = migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to init migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(s.dialect), driver)
	if err != nil {
		return fmt.Errorf("failed to init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Log.Info("database schema up to date", "dialect", s.dialect)
	return nil
}

// exec runs a mutating statement, recording metrics and logging the failing
// operation's intent.
func (s *Storage) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
	observe(op, start, err)
	if err != nil {
		logger.Log.Error("statement failed", "operation", op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// query is exec's counterpart for multi-row reads.
func (s *Storage) query(ctx context.Context, op, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	observe(op, start, err)
	if err != nil {
		logger.Log.Error("query failed", "operation", op, "error", err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rows, nil
}

func (s *Storage) row(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}
