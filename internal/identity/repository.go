package identity

import (
	"context"

	"github.com/google/uuid"
)

// Repository abstracts user and refresh-token storage.
// Find methods return (nil, nil) when no row matches.
type Repository interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	CreateUser(ctx context.Context, user User) (User, error)
	UpdateUserLogin(ctx context.Context, id uuid.UUID, name, avatarURL string) error

	CreateRefreshToken(ctx context.Context, token RefreshToken, tokenHash string) error
	// ConsumeRefreshToken atomically deletes the row matching tokenHash and
	// returns it, or (nil, nil) if no such row exists. Deletion on read is
	// what makes refresh tokens single-use.
	ConsumeRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error)
	DeleteRefreshTokensForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context) (int64, error)
}
