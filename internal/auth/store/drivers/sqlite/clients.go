package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
)

type clientsRepo struct {
	q querier
}

func (r *clientsRepo) CreateClient(ctx context.Context, c domain.Client) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO clients (
			id, name, secret_hash, redirect_uris, grant_types,
			response_types, token_endpoint_auth_method, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.Name,
		mapStringNull(c.SecretHash),
		strings.Join(c.RedirectURIs, " "),
		strings.Join(c.GrantTypes, " "),
		strings.Join(c.ResponseTypes, " "),
		c.TokenEndpointAuthMethod,
		c.CreatedAt,
	)
	return err
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, secret_hash, redirect_uris, grant_types,
		       response_types, token_endpoint_auth_method, created_at
		FROM clients WHERE id = ?`, id)

	var (
		c            domain.Client
		secretHash   sql.NullString
		redirectURIs string
		grantTypes   string
		respTypes    string
	)
	err := row.Scan(
		&c.ID, &c.Name, &secretHash, &redirectURIs,
		&grantTypes, &respTypes, &c.TokenEndpointAuthMethod, &c.CreatedAt,
	)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}

	c.SecretHash = mapNullString(secretHash)
	c.RedirectURIs = splitFields(redirectURIs)
	c.GrantTypes = splitFields(grantTypes)
	c.ResponseTypes = splitFields(respTypes)
	return c, nil
}
