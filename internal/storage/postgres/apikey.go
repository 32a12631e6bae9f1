package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/auth"
)

const (
	getAPIKeyByHashSQL = `SELECT id, key_hash, name, actor_id, role
		FROM api_keys WHERE key_hash = $1 AND active = TRUE`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, actor_id, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key_hash) DO UPDATE
		SET name = EXCLUDED.name, actor_id = EXCLUDED.actor_id, role = EXCLUDED.role, active = TRUE`
)

var _ auth.Repository = (*APIKeyRepository)(nil)

// APIKeyRepository provides API key lookups backed by PostgreSQL.
type APIKeyRepository struct {
	pool *pgxpool.Pool
}

// NewAPIKeyRepository returns an APIKeyRepository that uses the given pool.
func NewAPIKeyRepository(pool *pgxpool.Pool) *APIKeyRepository {
	return &APIKeyRepository{pool: pool}
}

// FindByHash looks up an active API key by its HMAC-SHA256 hash.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (*auth.APIKeyInfo, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, getAPIKeyByHashSQL, hash)
	if err != nil {
		return nil, errors.Wrap(err, "query api key")
	}
	info, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (auth.APIKeyInfo, error) {
		var (
			info auth.APIKeyInfo
			role string
		)
		err := row.Scan(&info.ID, &info.KeyHash, &info.Name, &info.Actor.ID, &role)
		info.Actor.Role = auth.Role(role)
		return info, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUnauthorized
		}
		return nil, errors.Wrap(err, "scan api key")
	}
	return &info, nil
}

// Put stores an API key, reactivating it if the hash already exists.
func (r *APIKeyRepository) Put(ctx context.Context, info auth.APIKeyInfo) error {
	_, err := conn(ctx, r.pool).Exec(ctx, upsertAPIKeySQL,
		info.ID, info.KeyHash, info.Name, info.Actor.ID, string(info.Actor.Role),
	)
	if err != nil {
		return errors.Wrapf(err, "store api key %q", info.Name)
	}
	return nil
}
