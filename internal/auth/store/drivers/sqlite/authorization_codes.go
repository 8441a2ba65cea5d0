package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
	"github.com/werkenmetai/exact-mcp/internal/auth/store"
)

type authorizationCodesRepo struct {
	q querier
}

func (r *authorizationCodesRepo) CreateAuthorizationCode(ctx context.Context, code domain.AuthorizationCode) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO authorization_codes (
			id, user_id, client_id, code_hash, redirect_uri, scope,
			code_challenge, code_challenge_method, expires_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.ID,
		code.UserID,
		code.ClientID,
		code.CodeHash,
		code.RedirectURI,
		strings.Join(code.Scope, " "),
		code.CodeChallenge,
		code.CodeChallengeMethod,
		code.ExpiresAt,
		code.CreatedAt,
	)
	return err
}

func (r *authorizationCodesRepo) GetAuthorizationCodeByHash(ctx context.Context, hash string) (domain.AuthorizationCode, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, client_id, code_hash, redirect_uri, scope,
		       code_challenge, code_challenge_method, expires_at, used_at, created_at
		FROM authorization_codes WHERE code_hash = ?`, hash)

	var (
		c      domain.AuthorizationCode
		scope  string
		usedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.ClientID, &c.CodeHash, &c.RedirectURI, &scope,
		&c.CodeChallenge, &c.CodeChallengeMethod, &c.ExpiresAt, &usedAt, &c.CreatedAt,
	)
	if err != nil {
		return domain.AuthorizationCode{}, mapNotFound(err)
	}

	c.Scope = splitFields(scope)
	c.UsedAt = mapNullTimePtr(usedAt)
	return c, nil
}

// MarkAuthorizationCodeUsed is a single conditional statement: the used_at IS
// NULL guard makes the null-to-set transition happen exactly once even when
// two instances race on the same code.
func (r *authorizationCodesRepo) MarkAuthorizationCodeUsed(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE authorization_codes SET used_at = ?
		WHERE id = ? AND used_at IS NULL`, at, id)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrConflict
	}
	return nil
}

func (r *authorizationCodesRepo) DeleteExpiredAuthorizationCodes(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM authorization_codes WHERE expires_at < ?`, time.Now())
	return err
}
