package record

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"pdssp-crawler/internal/domain"
)

const (
	createSnapshotTable = `CREATE TABLE IF NOT EXISTS crawler_snapshots (
	name       TEXT PRIMARY KEY,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	selectSnapshot = `SELECT document::text FROM crawler_snapshots WHERE name = $1`
	upsertSnapshot = `INSERT INTO crawler_snapshots (name, document, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`
)

// PostgresBackend 把整份快照存为 crawler_snapshots 表中的一行。
type PostgresBackend struct {
	pool *pgxpool.Pool
	name string
}

// NewPostgresBackend 连接数据库并确保表存在。
func NewPostgresBackend(ctx context.Context, dsn, name string) (*PostgresBackend, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn 不能为空")
	}
	if name == "" {
		name = "collections"
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres 无法连通: %w", err)
	}
	if _, err := pool.Exec(ctx, createSnapshotTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create snapshot table: %w", err)
	}
	return &PostgresBackend{pool: pool, name: name}, nil
}

func (b *PostgresBackend) Load(ctx context.Context) ([]byte, error) {
	var doc string
	err := b.pool.QueryRow(ctx, selectSnapshot, b.name).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", b.name, err)
	}
	return []byte(doc), nil
}

func (b *PostgresBackend) Save(ctx context.Context, data []byte) error {
	if _, err := b.pool.Exec(ctx, upsertSnapshot, b.name, string(data)); err != nil {
		return fmt.Errorf("save snapshot %s: %w", b.name, err)
	}
	return nil
}

// Close 释放连接池。
func (b *PostgresBackend) Close() {
	if b != nil && b.pool != nil {
		b.pool.Close()
	}
}
