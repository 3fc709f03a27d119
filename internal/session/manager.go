package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"log/slog"
)

type identityAPI interface {
	Login(ctx context.Context, email, password string) (*Identity, Tokens, error)
	Register(ctx context.Context, name, email, password string) (*Identity, error)
	LinkOrCreate(ctx context.Context, provider string, claims ProviderClaims) (*Identity, Tokens, error)
}

// Manager is the session state machine. It owns the single live session
// record for the client context, drives every lifecycle transition, and is
// the only component allowed to install or tear down credentials.
//
// Password and OAuth sign-in converge here: both end in the same
// Authenticated representation, and nothing downstream can tell which path
// was taken.
type Manager struct {
	mu      sync.Mutex
	record  Record
	subs    map[int]chan Record
	nextSub int

	vault     *Vault
	coord     *Coordinator
	api       identityAPI
	logger    *slog.Logger
	signedOut func(cause error)
}

// ManagerOption configures a Manager during construction.
type ManagerOption func(*Manager)

// WithSignOutHook installs the process-wide sign-out side effect, typically
// a redirect to re-authentication. The hook receives the fatal cause on a
// forced sign-out and nil on an explicit one.
func WithSignOutHook(hook func(cause error)) ManagerOption {
	return func(m *Manager) {
		m.signedOut = hook
	}
}

// NewManager creates a Manager in StateAnonymous.
func NewManager(api identityAPI, vault *Vault, coord *Coordinator, logger *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		record: Record{State: StateAnonymous},
		subs:   make(map[int]chan Record),
		vault:  vault,
		coord:  coord,
		api:    api,
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.State
}

// Snapshot returns a copy of the current session record.
func (m *Manager) Snapshot() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record
}

// Identity returns the identity of the authenticated session, or nil.
func (m *Manager) Identity() *Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.record.Identity
}

// Subscribe registers an observer of session transitions. Every subscriber
// sees the same transitions in the same order. The returned cancel func
// releases the subscription and closes the channel. Slow observers lose the
// oldest pending snapshot, never the newest.
func (m *Manager) Subscribe() (<-chan Record, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Record, 8)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// SignIn performs a password login. On success the session is Authenticated
// with the returned pair in the vault; on failure the session returns to
// Anonymous untouched, since nothing was ever installed.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if err := m.beginAuthenticating(); err != nil {
		return err
	}

	ident, tokens, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.abortAuthenticating()
		return err
	}

	m.install(ident, tokens)
	m.logger.Info("session authenticated", "user_id", ident.ID, "email", ident.Email)
	return nil
}

// Register creates a password account and signs it in. Field-level rejection
// surfaces as *RegistrationError with the session left in Anonymous.
func (m *Manager) Register(ctx context.Context, name, email, password string) error {
	if err := m.beginAuthenticating(); err != nil {
		return err
	}

	if _, err := m.api.Register(ctx, name, email, password); err != nil {
		m.abortAuthenticating()
		return err
	}

	ident, tokens, err := m.api.Login(ctx, email, password)
	if err != nil {
		m.abortAuthenticating()
		return err
	}

	m.install(ident, tokens)
	m.logger.Info("session registered", "user_id", ident.ID, "email", ident.Email)
	return nil
}

// SignInWithProvider folds an external identity into the session. The
// provider claims are forwarded to the identity service, which decides
// whether to create an account or attach to an existing one; a conflicting
// binding surfaces as *ProviderConflictError and installs nothing.
func (m *Manager) SignInWithProvider(ctx context.Context, provider string, claims ProviderClaims) error {
	if err := m.beginAuthenticating(); err != nil {
		return err
	}

	ident, tokens, err := m.api.LinkOrCreate(ctx, provider, claims)
	if err != nil {
		m.abortAuthenticating()
		return err
	}

	m.install(ident, tokens)
	m.logger.Info("session authenticated via provider", "provider", provider, "user_id", ident.ID)
	return nil
}

// SignOut tears down the session explicitly. It is idempotent and safe to
// invoke from any UI surface.
func (m *Manager) SignOut() {
	m.mu.Lock()
	if m.record.State == StateAnonymous {
		m.mu.Unlock()
		return
	}

	m.vault.Clear()
	m.record = Record{State: StateAnonymous}
	m.notifyLocked()
	hook := m.signedOut
	m.mu.Unlock()

	m.logger.Info("session signed out")
	if hook != nil {
		hook(nil)
	}
}

// AccessToken returns a valid access token for the session, refreshing it
// through the coordinator when needed. A failed refresh is session-fatal:
// the forced sign-out happens here, before the error reaches the caller.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	token, err := m.coord.EnsureFresh(ctx)
	if err != nil {
		if errors.Is(err, ErrRefreshFailed) {
			m.forceSignOut(err)
		}
		return "", err
	}
	return token, nil
}

// Invalidate tears the session down after the server rejected a credential
// the client believed valid. The dispatcher calls this on a 401 response.
func (m *Manager) Invalidate(cause error) {
	m.forceSignOut(cause)
}

// forceSignOut drives Authenticated -> ErrorState -> Anonymous. Entering
// ErrorState is immediately followed by the unconditional sign-out; the
// two-step transition exists so observers see the failure annotation. The
// state check makes concurrent failure observations fire the side effects
// exactly once.
func (m *Manager) forceSignOut(cause error) {
	m.mu.Lock()
	if m.record.State != StateAuthenticated {
		m.mu.Unlock()
		return
	}

	m.record = Record{State: StateError, Identity: m.record.Identity, Err: cause}
	m.notifyLocked()

	m.vault.Clear()
	m.record = Record{State: StateAnonymous}
	m.notifyLocked()
	hook := m.signedOut
	m.mu.Unlock()

	m.logger.Warn("session terminated", "cause", cause)
	if hook != nil {
		hook(cause)
	}
}

func (m *Manager) beginAuthenticating() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record.State != StateAnonymous {
		return fmt.Errorf("cannot authenticate from state %s", m.record.State)
	}
	m.record = Record{State: StateAuthenticating}
	m.notifyLocked()
	return nil
}

func (m *Manager) abortAuthenticating() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.record = Record{State: StateAnonymous}
	m.notifyLocked()
}

func (m *Manager) install(ident *Identity, tokens Tokens) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.vault.Set(tokens.Access, tokens.Refresh)
	m.record = Record{State: StateAuthenticated, Identity: ident}
	m.notifyLocked()
}

// notifyLocked fans the current record out to subscribers. Callers hold mu,
// which is what serializes transitions into one observable order.
func (m *Manager) notifyLocked() {
	for _, ch := range m.subs {
		select {
		case ch <- m.record:
		default:
			// Full buffer: evict the oldest snapshot so the newest lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- m.record:
			default:
			}
		}
	}
}
