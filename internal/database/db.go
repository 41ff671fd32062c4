package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// DB wraps the Postgres connection pool
type DB struct {
	*sql.DB
}

// New opens a pool and verifies it with a ping
func New(databaseURL string) (*DB, error) {
	sqlDB, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: sqlDB}, nil
}

// Connect calls New with exponential backoff until it succeeds, maxElapsed passes or ctx ends
func Connect(ctx context.Context, databaseURL string, maxElapsed time.Duration, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Second
	eb.MaxInterval = 15 * time.Second
	eb.MaxElapsedTime = maxElapsed

	var db *DB
	op := func() error {
		var err error
		db, err = New(databaseURL)
		return err
	}
	notify := func(err error, delay time.Duration) {
		log.Warn("failed_to_connect_to_database_retrying",
			zap.Error(err),
			zap.Duration("retry_delay", delay),
		)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(eb, ctx), notify); err != nil {
		return nil, err
	}
	return db, nil
}

// Ping reports whether the database answers
func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}
