package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SessionSource hands the dispatcher the session behind a request. Two
// dispatch contexts exist with different trust boundaries: one can read the
// session directly, one has to fetch it through an indirect accessor. Both
// funnel into the same Manager, and through it the same coordinator and
// vault, so expiry behavior cannot diverge between them.
type SessionSource interface {
	Session(ctx context.Context) (*Manager, error)
}

// DirectSource serves a session the caller already holds.
type DirectSource struct {
	manager *Manager
}

// NewDirectSource wraps a Manager as a SessionSource.
func NewDirectSource(manager *Manager) *DirectSource {
	return &DirectSource{manager: manager}
}

// Session returns the wrapped manager.
func (s *DirectSource) Session(context.Context) (*Manager, error) {
	return s.manager, nil
}

// AccessorSource fetches the session through an indirect accessor on every
// dispatch, for contexts that cannot hold a session reference themselves.
type AccessorSource struct {
	fetch func(ctx context.Context) (*Manager, error)
}

// NewAccessorSource wraps an accessor function as a SessionSource.
func NewAccessorSource(fetch func(ctx context.Context) (*Manager, error)) *AccessorSource {
	return &AccessorSource{fetch: fetch}
}

// Session invokes the accessor.
func (s *AccessorSource) Session(ctx context.Context) (*Manager, error) {
	return s.fetch(ctx)
}

// Dispatcher sends requests to the resource API with the session's bearer
// credential attached.
type Dispatcher struct {
	source SessionSource
	http   *http.Client
}

// NewDispatcher creates a Dispatcher over the given source. A nil httpClient
// gets a 30 second timeout default.
func NewDispatcher(source SessionSource, httpClient *http.Client) *Dispatcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Dispatcher{source: source, http: httpClient}
}

// Do dispatches an authenticated request.
//
// The access token is ensured fresh before anything goes on the wire; if the
// refresh fails, the session is already torn down by the time this returns
// and the request is never sent. A 401 from the server is the asymmetric
// case: the server knows better than the client's expiry bookkeeping, so
// there is no refresh-and-retry. The session is terminated on the spot and
// the caller gets ErrUnauthorized. Retrying against a token the server has
// revoked would loop forever.
func (d *Dispatcher) Do(req *http.Request) (*http.Response, error) {
	manager, err := d.source.Session(req.Context())
	if err != nil {
		return nil, fmt.Errorf("%w: resolve session: %v", ErrUnauthorized, err)
	}

	token, err := manager.AccessToken(req.Context())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}

	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		manager.Invalidate(ErrUnauthorized)
		return nil, ErrUnauthorized
	}

	return resp, nil
}
