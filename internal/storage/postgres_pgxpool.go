package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bher20/freightrates/internal/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryTimeout is the deadline for each pgxpool read or write.
const queryTimeout = 5 * time.Second

// PostgresPoolStorage talks to Postgres through a pgx connection pool. The
// schema is owned by the goose migrations in internal/migrate.
type PostgresPoolStorage struct {
	pool *pgxpool.Pool
}

func OpenPostgresPool(ctx context.Context, dsn string) (*PostgresPoolStorage, error) {
	if dsn == "" {
		dsn = "postgres://localhost:5432/freightrates?sslmode=disable"
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: connect: %w", err)
	}

	return &PostgresPoolStorage{pool: pool}, nil
}

func (s *PostgresPoolStorage) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks connectivity and publishes pool gauges.
func (s *PostgresPoolStorage) Ping(ctx context.Context) error {
	st := s.pool.Stat()
	metrics.UpdateDBPoolMetrics("postgrespool",
		float64(st.TotalConns()), float64(st.IdleConns()), float64(st.AcquiredConns()))
	return s.pool.Ping(ctx)
}

func (s *PostgresPoolStorage) LatestRate(ctx context.Context, origin, destination, mode string, now time.Time) (*CachedRate, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	const q = `
		SELECT id, origin, destination, mode, price, currency, transit_days, carrier, valid_until, created_at
		FROM cached_rates
		WHERE origin = $1
		  AND destination = $2
		  AND mode = $3
		  AND valid_until > $4
		ORDER BY created_at DESC
		LIMIT 1`

	var r CachedRate
	err := s.pool.QueryRow(ctx, q, origin, destination, mode, now).Scan(
		&r.ID, &r.Origin, &r.Destination, &r.Mode, &r.Price, &r.Currency,
		&r.TransitDays, &r.Carrier, &r.ValidUntil, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pgxpool: latest rate: %w", err)
	}
	return &r, nil
}

func (s *PostgresPoolStorage) SaveRate(ctx context.Context, rec CachedRate) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO cached_rates (id, origin, destination, mode, price, currency, transit_days, carrier, valid_until, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, rec.ID, rec.Origin, rec.Destination, rec.Mode, rec.Price, rec.Currency,
		rec.TransitDays, rec.Carrier, rec.ValidUntil, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgxpool: save rate: %w", err)
	}
	return nil
}

func (s *PostgresPoolStorage) CountRatesSince(ctx context.Context, since time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cached_rates WHERE created_at >= $1`, since).Scan(&n)
	return n, err
}

func (s *PostgresPoolStorage) LoadCasbinRules(ctx context.Context) ([]CasbinRule, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, `SELECT id, ptype, v0, v1, v2, v3, v4, v5 FROM casbin_rules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CasbinRule
	for rows.Next() {
		var r CasbinRule
		if err := rows.Scan(&r.ID, &r.PType, &r.V0, &r.V1, &r.V2, &r.V3, &r.V4, &r.V5); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresPoolStorage) AddCasbinRule(ctx context.Context, r CasbinRule) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO casbin_rules (ptype, v0, v1, v2, v3, v4, v5)
		SELECT $1,$2,$3,$4,$5,$6,$7
		WHERE NOT EXISTS (
			SELECT 1 FROM casbin_rules
			WHERE ptype=$1 AND v0=$2 AND v1=$3 AND v2=$4 AND v3=$5 AND v4=$6 AND v5=$7
		)
	`, r.PType, r.V0, r.V1, r.V2, r.V3, r.V4, r.V5)
	return err
}

func (s *PostgresPoolStorage) RemoveCasbinRule(ctx context.Context, r CasbinRule) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		DELETE FROM casbin_rules
		WHERE ptype=$1 AND v0=$2 AND v1=$3 AND v2=$4 AND v3=$5 AND v4=$6 AND v5=$7
	`, r.PType, r.V0, r.V1, r.V2, r.V3, r.V4, r.V5)
	return err
}

// WithAdvisoryLock runs fn while holding a session-level advisory lock on a
// dedicated connection. It returns false without running fn when another
// session holds the lock.
func (s *PostgresPoolStorage) WithAdvisoryLock(ctx context.Context, key int64, fn func(context.Context) error) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("pgxpool: acquire conn: %w", err)
	}
	defer conn.Release()

	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&ok); err != nil {
		return false, fmt.Errorf("pgxpool: advisory lock: %w", err)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if _, err := conn.Exec(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, key); err != nil {
			slog.Warn("pgxpool: release advisory lock failed", "key", key, "error", err)
		}
	}()

	return true, fn(ctx)
}
