package session

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultExpirySkew treats tokens as expired slightly early so the
	// authenticated call that follows does not land on a just-expired token.
	DefaultExpirySkew = 5 * time.Second
	// DefaultRefreshTimeout bounds the refresh network call so a hung
	// connection cannot stall every dependent request indefinitely.
	DefaultRefreshTimeout = 10 * time.Second
)

type refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Coordinator single-flights token refreshes against the vault. Refresh
// tokens are single-use on the server, so two racing refresh calls would
// hand one caller a rejection and spuriously tear down a live session; the
// coordinator guarantees at most one refresh is outstanding and that every
// concurrent caller shares its outcome.
type Coordinator struct {
	vault   *Vault
	api     refresher
	group   singleflight.Group
	skew    time.Duration
	timeout time.Duration
}

// CoordinatorOption configures a Coordinator during construction.
type CoordinatorOption func(*Coordinator)

// WithExpirySkew overrides the early-expiry window.
func WithExpirySkew(skew time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.skew = skew
	}
}

// WithRefreshTimeout overrides the bound on the refresh network call.
func WithRefreshTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.timeout = timeout
	}
}

// NewCoordinator creates a Coordinator over the vault and refresh endpoint.
func NewCoordinator(vault *Vault, api refresher, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		vault:   vault,
		api:     api,
		skew:    DefaultExpirySkew,
		timeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EnsureFresh returns a currently valid access token, refreshing the pair
// first if it has expired. The unexpired path makes no network call and is
// the one exercised on every authenticated request.
//
// A refresh already in flight is joined, never duplicated. A caller whose
// context ends while waiting stops observing the result; the refresh itself
// runs to completion and still rotates the vault. Failure wraps
// ErrRefreshFailed and is never retried here: the presented refresh token
// must be assumed consumed.
func (c *Coordinator) EnsureFresh(ctx context.Context) (string, error) {
	if !c.vault.IsExpired(c.skew) {
		pair, _ := c.vault.Get()
		return pair.AccessToken, nil
	}

	ch := c.group.DoChan("refresh", func() (any, error) {
		// A rotation may have completed between the caller's expiry check
		// and this flight starting.
		if !c.vault.IsExpired(c.skew) {
			pair, _ := c.vault.Get()
			return pair.AccessToken, nil
		}

		pair, ok := c.vault.Get()
		if !ok {
			return nil, fmt.Errorf("%w: no tokens held", ErrRefreshFailed)
		}

		// Detached from any caller: the flight is not cancellable, only
		// bounded.
		refreshCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		tokens, err := c.api.Refresh(refreshCtx, pair.RefreshToken)
		if err != nil {
			return nil, err
		}

		c.vault.Set(tokens.Access, tokens.Refresh)
		return tokens.Access, nil
	})

	select {
	case result := <-ch:
		if result.Err != nil {
			return "", result.Err
		}
		return result.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
