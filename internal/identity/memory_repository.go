package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryRepository implements Repository with process-local maps. It
// backs local development and tests.
type InMemoryRepository struct {
	mu            sync.RWMutex
	usersByID     map[uuid.UUID]User
	usersByEmail  map[string]uuid.UUID
	refreshTokens map[string]RefreshToken
}

// NewInMemoryRepository creates an empty in-memory repository, optionally
// seeded with users.
func NewInMemoryRepository(seed ...User) *InMemoryRepository {
	repo := &InMemoryRepository{
		usersByID:     make(map[uuid.UUID]User),
		usersByEmail:  make(map[string]uuid.UUID),
		refreshTokens: make(map[string]RefreshToken),
	}
	for _, user := range seed {
		repo.usersByID[user.ID] = user
		repo.usersByEmail[user.Email] = user.ID
	}
	return repo
}

// FindUserByEmail looks up a user by email address.
func (r *InMemoryRepository) FindUserByEmail(_ context.Context, email string) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usersByEmail[email]
	if !ok {
		return nil, nil
	}
	user := r.usersByID[id]
	return &user, nil
}

// FindUserByID looks up a user by primary key.
func (r *InMemoryRepository) FindUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.usersByID[id]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

// CreateUser stores a new user.
func (r *InMemoryRepository) CreateUser(_ context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.usersByID[user.ID] = user
	r.usersByEmail[user.Email] = user.ID
	return user, nil
}

// UpdateUserLogin updates profile data and the last login timestamp.
func (r *InMemoryRepository) UpdateUserLogin(_ context.Context, id uuid.UUID, name, avatarURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.usersByID[id]
	if !ok {
		return nil
	}
	now := time.Now()
	user.Name = name
	user.AvatarURL = avatarURL
	user.LastLoginAt = now
	user.UpdatedAt = now
	r.usersByID[id] = user
	return nil
}

// CreateRefreshToken stores a refresh token keyed by its hash.
func (r *InMemoryRepository) CreateRefreshToken(_ context.Context, token RefreshToken, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refreshTokens[tokenHash] = token
	return nil
}

// ConsumeRefreshToken removes and returns the token matching the hash.
func (r *InMemoryRepository) ConsumeRefreshToken(_ context.Context, tokenHash string) (*RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	token, ok := r.refreshTokens[tokenHash]
	if !ok {
		return nil, nil
	}
	delete(r.refreshTokens, tokenHash)
	return &token, nil
}

// DeleteRefreshTokensForUser removes all refresh tokens issued to a user.
func (r *InMemoryRepository) DeleteRefreshTokensForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted int64
	for hash, token := range r.refreshTokens {
		if token.UserID == userID {
			delete(r.refreshTokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

// DeleteExpiredRefreshTokens removes refresh tokens past their expiry.
func (r *InMemoryRepository) DeleteExpiredRefreshTokens(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var deleted int64
	for hash, token := range r.refreshTokens {
		if now.After(token.ExpiresAt) {
			delete(r.refreshTokens, hash)
			deleted++
		}
	}
	return deleted, nil
}
