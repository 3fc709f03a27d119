package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when the email or password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("an account with this email already exists")
	// ErrRefreshRejected is returned when a refresh token is unknown, already
	// consumed, or expired.
	ErrRefreshRejected = errors.New("refresh token rejected")
)

// FieldErrors carries per-field validation messages for a rejected registration.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	return "invalid registration input"
}

// ProviderConflictError is returned when OAuth claims collide with an email
// already bound to a different provider.
type ProviderConflictError struct {
	Provider string
}

func (e *ProviderConflictError) Error() string {
	return fmt.Sprintf("email already bound to provider %q", e.Provider)
}

// EmailStatus describes the disposition of an email in the account namespace.
type EmailStatus struct {
	Exists   bool
	Provider string
}

// Service provides account and token business logic.
type Service struct {
	repo       Repository
	tokens     *TokenIssuer
	refreshTTL time.Duration
}

// NewService creates a new identity Service.
func NewService(repo Repository, tokens *TokenIssuer, refreshTTL time.Duration) *Service {
	if refreshTTL == 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		repo:       repo,
		tokens:     tokens,
		refreshTTL: refreshTTL,
	}
}

// CheckEmail reports whether an account exists for the email and, if so,
// which provider it is bound to.
func (s *Service) CheckEmail(ctx context.Context, email string) (EmailStatus, error) {
	user, err := s.repo.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return EmailStatus{}, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return EmailStatus{}, nil
	}
	return EmailStatus{Exists: true, Provider: user.Provider}, nil
}

// Register creates a password account. It does not issue tokens; clients
// follow registration with a login.
func (s *Service) Register(ctx context.Context, name, email, password string) (*User, error) {
	email = normalizeEmail(email)
	if fields := validateRegistration(name, email, password); len(fields) > 0 {
		return nil, fields
	}

	existing, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	hashString := string(hash)

	now := time.Now()
	user := User{
		ID:           uuid.New(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		PasswordHash: &hashString,
		Provider:     ProviderPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLoginAt:  now,
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &created, nil
}

// Login verifies a password credential and issues a token pair.
func (s *Service) Login(ctx context.Context, email, password string) (*User, *TokenPair, error) {
	user, err := s.repo.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil || !user.HasPasswordBinding() {
		return nil, nil, ErrInvalidCredentials
	}

	if bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)) != nil {
		return nil, nil, ErrInvalidCredentials
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// LinkOrCreateOAuth attaches external provider claims to an account. An
// email already bound to a different provider (password included) is a
// conflict; the service never silently merges bindings.
func (s *Service) LinkOrCreateOAuth(ctx context.Context, provider, email, name, avatarURL string) (*User, *TokenPair, error) {
	email = normalizeEmail(email)
	existing, err := s.repo.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("find user: %w", err)
	}

	if existing != nil {
		if existing.Provider != provider {
			return nil, nil, &ProviderConflictError{Provider: existing.Provider}
		}

		if err := s.repo.UpdateUserLogin(ctx, existing.ID, name, avatarURL); err != nil {
			return nil, nil, fmt.Errorf("update user login: %w", err)
		}
		existing.Name = name
		existing.AvatarURL = avatarURL
		existing.LastLoginAt = time.Now()

		pair, err := s.issuePair(ctx, existing.ID)
		if err != nil {
			return nil, nil, err
		}
		return existing, pair, nil
	}

	now := time.Now()
	user := User{
		ID:          uuid.New(),
		Email:       email,
		Name:        strings.TrimSpace(name),
		AvatarURL:   avatarURL,
		Provider:    provider,
		IsVerified:  true,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: now,
	}

	created, err := s.repo.CreateUser(ctx, user)
	if err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	pair, err := s.issuePair(ctx, created.ID)
	if err != nil {
		return nil, nil, err
	}
	return &created, pair, nil
}

// Refresh consumes a refresh token and issues a replacement pair. The
// presented token is deleted before the new pair is minted, so a second
// presentation of the same value is rejected.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrRefreshRejected
	}

	stored, err := s.repo.ConsumeRefreshToken(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	if stored == nil || time.Now().After(stored.ExpiresAt) {
		return nil, ErrRefreshRejected
	}

	return s.issuePair(ctx, stored.UserID)
}

// Revoke invalidates a refresh token, if it exists. Used on explicit sign-out.
func (s *Service) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	_, err := s.repo.ConsumeRefreshToken(ctx, HashRefreshToken(refreshToken))
	if err != nil {
		return fmt.Errorf("consume refresh token: %w", err)
	}
	return nil
}

// GetUser loads a user by ID.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// ValidateAccess exposes access-token validation for transport middleware.
func (s *Service) ValidateAccess(token string) (*AccessClaims, error) {
	return s.tokens.ValidateAccess(token)
}

// CleanupExpiredRefreshTokens removes refresh tokens past their expiry.
func (s *Service) CleanupExpiredRefreshTokens(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredRefreshTokens(ctx)
}

func (s *Service) issuePair(ctx context.Context, userID uuid.UUID) (*TokenPair, error) {
	access, err := s.tokens.MintAccess(userID)
	if err != nil {
		return nil, err
	}

	refresh, refreshHash, err := NewRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	record := RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.repo.CreateRefreshToken(ctx, record, refreshHash); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func validateRegistration(name, email, password string) FieldErrors {
	fields := FieldErrors{}

	if _, err := mail.ParseAddress(email); err != nil {
		fields["email"] = "Invalid email format"
	}
	if len(password) < 8 {
		fields["password"] = "Password must be at least 8 characters"
	}
	if strings.TrimSpace(name) == "" {
		fields["name"] = "Name is required"
	}

	if len(fields) == 0 {
		return nil
	}
	return fields
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
