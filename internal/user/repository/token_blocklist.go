package repository

import (
	"context"
	"fmt"
	"time"

	"codearena/internal/common/cache"
)

const blocklistKeyPrefix = "auth:blocklist:"

// TokenBlocklistRepository keeps revoked token ids in redis until the
// token would have expired anyway, so the blocklist never grows beyond
// the set of still-valid revoked tokens.
type TokenBlocklistRepository struct {
	cache cache.Cache
}

// NewTokenBlocklistRepository creates a blocklist repository.
func NewTokenBlocklistRepository(cacheClient cache.Cache) (*TokenBlocklistRepository, error) {
	if cacheClient == nil {
		return nil, fmt.Errorf("cache is required")
	}
	return &TokenBlocklistRepository{cache: cacheClient}, nil
}

// Block revokes a token id for the given remaining lifetime.
func (r *TokenBlocklistRepository) Block(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return fmt.Errorf("tokenID is required")
	}
	if ttl <= 0 {
		// Already expired, nothing to block.
		return nil
	}
	return r.cache.Set(ctx, blocklistKey(tokenID), "revoked", ttl)
}

// IsBlocked reports whether a token id has been revoked.
func (r *TokenBlocklistRepository) IsBlocked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, nil
	}
	count, err := r.cache.Exists(ctx, blocklistKey(tokenID))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func blocklistKey(tokenID string) string {
	return blocklistKeyPrefix + tokenID
}
