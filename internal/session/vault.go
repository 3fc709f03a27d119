package session

import (
	"sync"
	"time"
)

// DefaultAccessLifetime is the window after which an access token is
// considered expired, measured from the moment the pair entered the vault.
const DefaultAccessLifetime = 15 * time.Minute

// TokenPair is the credential pair for one session: a short-lived bearer
// access token and the refresh token that can mint its successor.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Vault holds the token pair for the active session. It is safe for
// concurrent use; mutation happens under a single lock so readers never
// observe a torn pair.
//
// Set always recomputes the expiry from the moment of the call. The server's
// own expiry claim is ignored, so clock skew or a stale timestamp on the
// wire cannot poison the vault.
type Vault struct {
	mu       sync.Mutex
	pair     TokenPair
	present  bool
	lifetime time.Duration
	now      func() time.Time
}

// NewVault creates an empty vault with the given access-token lifetime.
// A zero lifetime falls back to DefaultAccessLifetime.
func NewVault(lifetime time.Duration) *Vault {
	if lifetime == 0 {
		lifetime = DefaultAccessLifetime
	}
	return &Vault{lifetime: lifetime, now: time.Now}
}

// Set installs a rotated pair, stamping it with now + lifetime.
func (v *Vault) Set(accessToken, refreshToken string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.pair = TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    v.now().Add(v.lifetime),
	}
	v.present = true
}

// Get returns the current pair, and false when the vault is empty.
func (v *Vault) Get() (TokenPair, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pair, v.present
}

// IsExpired reports whether the held pair has reached its expiry. A positive
// skew treats the pair as expired that much early, absorbing the latency of
// the authenticated call that follows. An empty vault is always expired.
func (v *Vault) IsExpired(skew time.Duration) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.present {
		return true
	}
	return !v.now().Before(v.pair.ExpiresAt.Add(-skew))
}

// Clear zeroes the pair. Called on every sign-out, explicit or forced.
func (v *Vault) Clear() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pair = TokenPair{}
	v.present = false
}
