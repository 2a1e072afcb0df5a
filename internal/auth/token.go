// Package auth obtains and caches access tokens for the remote task list.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"todo-planner/internal/clock"
)

// Scope is the OAuth scope needed to read and write task lists.
const Scope = "https://www.googleapis.com/auth/tasks"

// expirySkew is how long before its stated expiry a token stops being used.
const expirySkew = 10 * time.Second

// ErrInteractionRequired is returned by silent fetches that would need the user.
var ErrInteractionRequired = errors.New("auth: interactive sign-in required")

// Token is an access token with its expiry. RefreshToken is only kept by
// providers that persist it.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether t can still be used at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt.Add(-expirySkew))
}

// Provider fetches a fresh token. In silent mode (interactive false) it must
// fail fast with ErrInteractionRequired instead of prompting.
type Provider interface {
	FetchToken(ctx context.Context, interactive bool) (Token, error)
}

// Cache hands out the cached token while it is valid and asks the provider
// otherwise.
type Cache struct {
	mu       sync.Mutex
	provider Provider
	clock    clock.Clock
	log      *zap.Logger
	token    Token
}

func NewCache(provider Provider, clk clock.Clock, log *zap.Logger) *Cache {
	return &Cache{provider: provider, clock: clk, log: log}
}

// AccessToken returns a valid access token, fetching one if needed.
func (c *Cache) AccessToken(ctx context.Context, interactive bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid(c.clock.Now()) {
		return c.token.AccessToken, nil
	}

	tok, err := c.provider.FetchToken(ctx, interactive)
	if err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", errors.New("auth: provider returned an empty token")
	}
	c.token = tok
	c.log.Debug("access token refreshed", zap.Time("expires_at", tok.ExpiresAt))
	return tok.AccessToken, nil
}

// Invalidate drops the cached token so the next call fetches a new one.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = Token{}
}
