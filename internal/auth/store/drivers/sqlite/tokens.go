package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
)

type tokensRepo struct {
	q querier
}

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.Token) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO tokens (
			id, client_id, user_id, access_token_hash, refresh_token_hash,
			scope, access_expires_at, refresh_expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.ClientID,
		t.UserID,
		t.AccessTokenHash,
		t.RefreshTokenHash,
		strings.Join(t.Scope, " "),
		t.AccessExpiresAt,
		t.RefreshExpiresAt,
		t.CreatedAt,
	)
	return err
}

func (r *tokensRepo) GetTokenByAccessHash(ctx context.Context, hash string) (domain.Token, error) {
	return r.getToken(ctx, `access_token_hash`, hash)
}

func (r *tokensRepo) GetTokenByRefreshHash(ctx context.Context, hash string) (domain.Token, error) {
	return r.getToken(ctx, `refresh_token_hash`, hash)
}

func (r *tokensRepo) getToken(ctx context.Context, column, hash string) (domain.Token, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, client_id, user_id, access_token_hash, refresh_token_hash,
		       scope, access_expires_at, refresh_expires_at, revoked_at, created_at
		FROM tokens WHERE `+column+` = ?`, hash)

	var (
		t         domain.Token
		scope     string
		revokedAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.ClientID, &t.UserID, &t.AccessTokenHash, &t.RefreshTokenHash,
		&scope, &t.AccessExpiresAt, &t.RefreshExpiresAt, &revokedAt, &t.CreatedAt,
	)
	if err != nil {
		return domain.Token{}, mapNotFound(err)
	}

	t.Scope = splitFields(scope)
	t.RevokedAt = mapNullTimePtr(revokedAt)
	return t, nil
}

// RevokeTokenByHash matches either fingerprint so callers need no
// token_type_hint. A zero row count is deliberately not an error.
func (r *tokensRepo) RevokeTokenByHash(ctx context.Context, hash string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE tokens SET revoked_at = ?
		WHERE (access_token_hash = ? OR refresh_token_hash = ?) AND revoked_at IS NULL`,
		at, hash, hash)
	return err
}

func (r *tokensRepo) RevokeTokenByID(ctx context.Context, id string, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, at, id)
	return err
}

func (r *tokensRepo) DeleteExpiredTokens(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM tokens WHERE refresh_expires_at < ?`, time.Now())
	return err
}
