package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	logx "stockwatch/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS stock_checks (
	id         BIGSERIAL PRIMARY KEY,
	at         TIMESTAMPTZ NOT NULL,
	cycle      BIGINT      NOT NULL,
	name       TEXT,
	url        TEXT        NOT NULL,
	status     TEXT        NOT NULL,
	fragments  INTEGER     NOT NULL DEFAULT 0,
	err        TEXT,
	took_ms    BIGINT      NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_stock_checks_url_at ON stock_checks (url, at DESC);

CREATE TABLE IF NOT EXISTS stock_notifications (
	id        BIGSERIAL PRIMARY KEY,
	at        TIMESTAMPTZ NOT NULL,
	cycle     BIGINT      NOT NULL,
	driver    TEXT        NOT NULL,
	products  TEXT[]      NOT NULL,
	ok        BOOLEAN     NOT NULL,
	err       TEXT
);
`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Debug("postgres journal opened")
	return &postgresStore{pool: pool, log: log}, nil
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) AppendCheck(ctx context.Context, r CheckRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stock_checks(at, cycle, name, url, status, fragments, err, took_ms)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		r.At, int64(r.Cycle), nullStr(r.Name), r.URL, r.Status, r.Fragments, nullStr(r.Error), r.TookMS,
	)
	return err
}

func (s *postgresStore) AppendNotification(ctx context.Context, r NotificationRecord) error {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	products := r.Products
	if products == nil {
		products = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO stock_notifications(at, cycle, driver, products, ok, err)
		 VALUES($1,$2,$3,$4,$5,$6)`,
		r.At, int64(r.Cycle), r.Driver, products, r.OK, nullStr(r.Error),
	)
	return err
}
