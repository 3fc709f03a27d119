package session

// State is a position in the session lifecycle.
type State int

const (
	// StateAnonymous is the initial state: no identity, no tokens.
	StateAnonymous State = iota
	// StateAuthenticating covers an in-progress credential or OAuth exchange.
	StateAuthenticating
	// StateAuthenticated means a token pair is held and valid or refreshable.
	StateAuthenticated
	// StateError is entered when a refresh fails; the session immediately and
	// unconditionally signs out from here.
	StateError
)

func (s State) String() string {
	switch s {
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Record is an observable snapshot of the session. Err is set only while in
// StateError.
type Record struct {
	State    State
	Identity *Identity
	Err      error
}
