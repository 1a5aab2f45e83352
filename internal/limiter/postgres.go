package limiter

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is a PostgreSQL-backed limiter with a sliding window and a
// temporary lockout once the failure threshold is reached.
type Postgres struct {
	pool     pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgres constructs a PostgreSQL-backed limiter.
func NewPostgres(pool *pgxpool.Pool, window time.Duration, maxFails int, blockFor time.Duration) *Postgres {
	return &Postgres{pool: pool, window: window, maxFails: maxFails, blockFor: blockFor}
}

// NewPostgresWithQuerier constructs a limiter over any querier (tests).
func NewPostgresWithQuerier(q pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *Postgres {
	return &Postgres{pool: q, window: window, maxFails: maxFails, blockFor: blockFor}
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Postgres) Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM login_attempts WHERE username=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.pool.QueryRow(ctx, q, username, ipHash).Scan(&blockedUntil)
	switch err {
	case nil:
		if until := time.Until(blockedUntil); until > 0 {
			return false, until, nil
		}
		return true, 0, nil
	case pgx.ErrNoRows:
		return true, 0, nil
	default:
		return false, 0, err
	}
}

// Success resets counters for (username, ip).
func (l *Postgres) Success(ctx context.Context, username string, ipHash []byte) error {
	const q = `
INSERT INTO login_attempts (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,0,'epoch',now())
ON CONFLICT (username, ip_hash)
DO UPDATE SET fail_count=0, blocked_until='epoch', updated_at=now()`
	_, err := l.pool.Exec(ctx, q, username, ipHash)
	return err
}

// Failure records a failed attempt. Counters older than the window
// restart at one; reaching the threshold places a block.
func (l *Postgres) Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO login_attempts (username, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1,$2,1,'epoch',now())
ON CONFLICT (username, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN now() - login_attempts.updated_at > $3::interval THEN 1 ELSE login_attempts.fail_count + 1 END,
  updated_at = now()
RETURNING fail_count`
	var fails int
	if err := l.pool.QueryRow(ctx, q, username, ipHash, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}

	const upd = `UPDATE login_attempts SET blocked_until=$3 WHERE username=$1 AND ip_hash=$2`
	if _, err := l.pool.Exec(ctx, upd, username, ipHash, time.Now().Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}
