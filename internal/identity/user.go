package identity

import (
	"time"

	"github.com/google/uuid"
)

// ProviderPassword is the binding kind for password accounts. The wire
// value predates the rename to "password" in the UI copy.
const ProviderPassword = "credentials"

// User represents an account in the identity namespace. Email is unique
// across the namespace and Provider names the primary binding: either
// ProviderPassword or the OAuth provider that first claimed the email.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	AvatarURL    string    `json:"avatar_url"`
	PasswordHash *string   `json:"-"`
	Provider     string    `json:"provider"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastLoginAt  time.Time `json:"last_login_at"`
}

// HasPasswordBinding reports whether the account can be logged into with
// a password.
func (u *User) HasPasswordBinding() bool {
	return u.Provider == ProviderPassword && u.PasswordHash != nil
}

// RefreshToken is the stored side of an issued refresh token. The token
// value itself is never persisted, only its hash.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	ExpiresAt time.Time
	CreatedAt time.Time
}

// GoogleClaims contains the relevant claims from a Google ID token.
type GoogleClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}
