package store

import (
	"context"
	_ "embed"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Connect opens a pool and pings it, retrying once a second while the
// database comes up. It gives up after wait or when ctx is done.
func Connect(ctx context.Context, url string, wait time.Duration) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("database url: %w", err)
	}
	cfg.MaxConns = 10

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	for attempt := 1; ; attempt++ {
		pool, err := ping(ctx, cfg)
		if err == nil {
			return pool, nil
		}
		log.Printf("[store] connect attempt %d: %v", attempt, err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connect after %d attempts: %w", attempt, err)
		case <-time.After(time.Second):
		}
	}
}

func ping(ctx context.Context, cfg *pgxpool.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	_, err := db.Exec(ctx, schema)
	return err
}

// exec, query and row run squirrel builders against the pool.

func (s *Store) exec(ctx context.Context, q sq.Sqlizer) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}
	_, err = s.db.Exec(ctx, sql, args...)
	return err
}

func (s *Store) query(ctx context.Context, q sq.Sqlizer) (pgx.Rows, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	return s.db.Query(ctx, sql, args...)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

func (s *Store) row(ctx context.Context, q sq.Sqlizer) pgx.Row {
	sql, args, err := q.ToSql()
	if err != nil {
		return errRow{fmt.Errorf("build: %w", err)}
	}
	return s.db.QueryRow(ctx, sql, args...)
}
