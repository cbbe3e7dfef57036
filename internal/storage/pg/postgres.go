package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"moviebot/internal/storage/pg/migrations"
)

// uniqueViolation is the Postgres SQLSTATE for unique constraint failures
const uniqueViolation = "23505"

// PostgresDB implements storage.Storage on Postgres
type PostgresDB struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDB opens a connection pool for dsn
func NewPostgresDB(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresDB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresDB{db: db, logger: logger}, nil
}

// Initialize applies the embedded schema migrations
func (p *PostgresDB) Initialize(ctx context.Context) error {
	if err := RunMigrations(ctx, p.db); err != nil {
		return err
	}
	p.logger.Info("Postgres schema is up to date")
	return nil
}

// RunMigrations applies every pending goose migration to db
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// DB exposes the pool for migrations tooling
func (p *PostgresDB) DB() *sql.DB {
	return p.db
}

// Close closes the pool
func (p *PostgresDB) Close() error {
	return p.db.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
