package sqlite

import (
	"context"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
	"github.com/werkenmetai/exact-mcp/internal/auth/store"
)

type connectionsRepo struct {
	q querier
}

func (r *connectionsRepo) CreateConnection(ctx context.Context, c domain.Connection) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO connections (
			id, user_id, access_token, refresh_token, region, division,
			token_expires_at, status, retry_count, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.AccessToken, c.RefreshToken, c.Region, c.Division,
		c.TokenExpiresAt, c.Status, c.RetryCount, c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *connectionsRepo) GetConnectionByID(ctx context.Context, id string) (domain.Connection, error) {
	return r.getConnection(ctx, `id`, id)
}

func (r *connectionsRepo) GetConnectionByUserID(ctx context.Context, userID string) (domain.Connection, error) {
	return r.getConnection(ctx, `user_id`, userID)
}

func (r *connectionsRepo) getConnection(ctx context.Context, column, value string) (domain.Connection, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, access_token, refresh_token, region, division,
		       token_expires_at, status, retry_count, created_at, updated_at
		FROM connections WHERE `+column+` = ?`, value)

	var c domain.Connection
	err := row.Scan(
		&c.ID, &c.UserID, &c.AccessToken, &c.RefreshToken, &c.Region, &c.Division,
		&c.TokenExpiresAt, &c.Status, &c.RetryCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.Connection{}, mapNotFound(err)
	}
	return c, nil
}

// UpdateConnectionTokens is the optimistic-concurrency write: the WHERE clause
// pins the expiry read before the refresh. Zero rows affected means another
// instance already rotated the credentials; the caller reloads rather than
// retrying the refresh.
func (r *connectionsRepo) UpdateConnectionTokens(
	ctx context.Context,
	id string,
	prevExpiresAt time.Time,
	accessToken, refreshToken string,
	expiresAt time.Time,
) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE connections
		SET access_token = ?, refresh_token = ?, token_expires_at = ?,
		    retry_count = 0, status = ?, updated_at = ?
		WHERE id = ? AND token_expires_at = ?`,
		accessToken, refreshToken, expiresAt,
		domain.ConnectionActive, time.Now(),
		id, prevExpiresAt,
	)
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

func (r *connectionsRepo) SetConnectionRetryCount(ctx context.Context, id string, count int) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE connections SET retry_count = ?, updated_at = ? WHERE id = ?`,
		count, time.Now(), id)
	return err
}

func (r *connectionsRepo) MarkConnectionFailed(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE connections SET status = ?, updated_at = ? WHERE id = ?`,
		domain.ConnectionFailed, time.Now(), id)
	return err
}
