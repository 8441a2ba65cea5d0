package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/werkenmetai/exact-mcp/internal/auth/domain"
	"github.com/werkenmetai/exact-mcp/internal/auth/store"
	"github.com/werkenmetai/exact-mcp/pkg/cryptox"
	"github.com/werkenmetai/exact-mcp/pkg/idx"
	"github.com/werkenmetai/exact-mcp/pkg/slogx"
)

var ErrInvalidAPIKey = errors.New("invalid_api_key")

// APIKeyService authenticates static API keys and mints new ones for
// out-of-band issuance.
type APIKeyService struct {
	Store store.Store
}

// MintAPIKey creates a key for a user. The plaintext is returned exactly once;
// the row stores its lookup prefix and a salted hash.
func (s *APIKeyService) MintAPIKey(ctx context.Context, userID string) (string, domain.APIKey, error) {
	key, err := cryptox.NewAPIKey()
	if err != nil {
		return "", domain.APIKey{}, err
	}

	hash, err := cryptox.HashCredential(key)
	if err != nil {
		return "", domain.APIKey{}, err
	}

	record := domain.APIKey{
		ID:        idx.New().String(),
		Prefix:    cryptox.APIKeyLookupPrefix(key),
		KeyHash:   hash,
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	if err := s.Store.APIKeys().CreateAPIKey(ctx, record); err != nil {
		return "", domain.APIKey{}, err
	}
	return key, record, nil
}

// Authenticate resolves a presented key to its record. The lookup prefix
// narrows the candidate set to a handful of rows; each candidate's salted hash
// is then verified against the full key. First match wins.
//
// Last-used tracking is a best-effort side effect and never delays or fails
// the request.
func (s *APIKeyService) Authenticate(ctx context.Context, key string) (domain.APIKey, error) {
	key = strings.TrimSpace(key)
	if !strings.HasPrefix(key, cryptox.APIKeyPrefix) {
		return domain.APIKey{}, ErrInvalidAPIKey
	}

	candidates, err := s.Store.APIKeys().ListActiveAPIKeysByPrefix(ctx, cryptox.APIKeyLookupPrefix(key))
	if err != nil {
		return domain.APIKey{}, err
	}

	for _, candidate := range candidates {
		if cryptox.VerifyCredential(key, candidate.KeyHash) == nil {
			s.touchLastUsed(ctx, candidate.ID)
			return candidate, nil
		}
	}
	return domain.APIKey{}, ErrInvalidAPIKey
}

// RevokeAPIKey soft-revokes a key. Revocation takes effect on the next lookup.
func (s *APIKeyService) RevokeAPIKey(ctx context.Context, id string) error {
	return s.Store.APIKeys().RevokeAPIKey(ctx, id, time.Now())
}

func (s *APIKeyService) touchLastUsed(ctx context.Context, id string) {
	l := slogx.FromContext(ctx)
	go func() {
		touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Store.APIKeys().TouchAPIKeyLastUsed(touchCtx, id, time.Now()); err != nil {
			l.Warn("failed to record api key usage", "error", err)
		}
	}()
}
