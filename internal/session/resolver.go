package session

import "context"

// DispositionStatus classifies what kind of account, if any, an email
// belongs to.
type DispositionStatus string

const (
	// DispositionUnregistered means no account exists for the email.
	DispositionUnregistered DispositionStatus = "unregistered"
	// DispositionPassword means the email has a password binding.
	DispositionPassword DispositionStatus = "password"
	// DispositionOAuth means the email is bound to an OAuth provider.
	DispositionOAuth DispositionStatus = "oauth"
)

// Disposition is the resolver's answer for one email. Provider is set only
// for DispositionOAuth.
type Disposition struct {
	Status   DispositionStatus
	Provider string
}

type emailChecker interface {
	CheckEmail(ctx context.Context, email string) (exists bool, provider string, err error)
}

// Resolver determines account disposition for an email so the UI can branch
// between the password prompt, the registration form, and the
// "use your other provider" notice. It performs no session mutation.
type Resolver struct {
	api emailChecker
}

// NewResolver creates a Resolver backed by the identity service client.
func NewResolver(api emailChecker) *Resolver {
	return &Resolver{api: api}
}

// Resolve classifies the email with one lookup call. Email format validation
// is a UI concern and does not happen here. Lookup failures propagate as
// ErrLookupFailed and are never reported as "unregistered": routing an
// existing user into account creation on a transient error would be worse
// than asking them to retry.
func (r *Resolver) Resolve(ctx context.Context, email string) (Disposition, error) {
	exists, provider, err := r.api.CheckEmail(ctx, email)
	if err != nil {
		return Disposition{}, err
	}

	if !exists {
		return Disposition{Status: DispositionUnregistered}, nil
	}
	if provider == providerPassword {
		return Disposition{Status: DispositionPassword}, nil
	}
	return Disposition{Status: DispositionOAuth, Provider: provider}, nil
}
