package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgxpool.Pool used by Postgres.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	loadBlobSQL = `SELECT blob FROM session_blobs
WHERE key = $1 AND (expires_at IS NULL OR expires_at > $2)`

	saveBlobSQL = `INSERT INTO session_blobs (key, blob, expires_at, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE
SET blob = EXCLUDED.blob, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`

	deleteBlobSQL = `DELETE FROM session_blobs WHERE key = $1`

	purgeBlobsSQL = `DELETE FROM session_blobs WHERE expires_at IS NOT NULL AND expires_at <= $1`
)

// Postgres stores blobs in the session_blobs table.
type Postgres struct {
	db  Querier
	Now func() time.Time
}

// NewPostgres constructs a Postgres-backed substrate.
func NewPostgres(db Querier) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) now() time.Time {
	if p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// Load implements Substrate.
func (p *Postgres) Load(ctx context.Context, key string) ([]byte, bool, error) {
	if p == nil || p.db == nil {
		return nil, false, errors.New("cache: postgres pool not configured")
	}
	var blob []byte
	if err := p.db.QueryRow(ctx, loadBlobSQL, key, p.now()).Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return blob, true, nil
}

// Save implements Substrate. A non-positive ttl stores the blob without expiry.
func (p *Postgres) Save(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	if p == nil || p.db == nil {
		return errors.New("cache: postgres pool not configured")
	}
	now := p.now()
	var expires *time.Time
	if ttl > 0 {
		at := now.Add(ttl)
		expires = &at
	}
	_, err := p.db.Exec(ctx, saveBlobSQL, key, blob, expires, now)
	return err
}

// Delete implements Substrate.
func (p *Postgres) Delete(ctx context.Context, key string) error {
	if p == nil || p.db == nil {
		return errors.New("cache: postgres pool not configured")
	}
	_, err := p.db.Exec(ctx, deleteBlobSQL, key)
	return err
}

// PurgeExpired removes expired rows and returns how many were deleted.
func (p *Postgres) PurgeExpired(ctx context.Context) (int64, error) {
	if p == nil || p.db == nil {
		return 0, errors.New("cache: postgres pool not configured")
	}
	tag, err := p.db.Exec(ctx, purgeBlobsSQL, p.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
