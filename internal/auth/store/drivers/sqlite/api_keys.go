package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
)

type apiKeysRepo struct {
	q querier
}

func (r *apiKeysRepo) CreateAPIKey(ctx context.Context, k domain.APIKey) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO api_keys (id, prefix, key_hash, user_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		k.ID, k.Prefix, k.KeyHash, k.UserID, k.CreatedAt,
	)
	return err
}

func (r *apiKeysRepo) ListActiveAPIKeysByPrefix(ctx context.Context, prefix string) ([]domain.APIKey, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, prefix, key_hash, user_id, revoked_at, last_used_at, created_at
		FROM api_keys WHERE prefix = ? AND revoked_at IS NULL`, prefix)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []domain.APIKey
	for rows.Next() {
		var (
			k          domain.APIKey
			revokedAt  sql.NullTime
			lastUsedAt sql.NullTime
		)
		if err := rows.Scan(
			&k.ID, &k.Prefix, &k.KeyHash, &k.UserID,
			&revokedAt, &lastUsedAt, &k.CreatedAt,
		); err != nil {
			return nil, err
		}
		k.RevokedAt = mapNullTimePtr(revokedAt)
		k.LastUsedAt = mapNullTimePtr(lastUsedAt)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (r *apiKeysRepo) TouchAPIKeyLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at, id)
	return err
}

func (r *apiKeysRepo) RevokeAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE api_keys SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, at, id)
	return err
}
