package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type userRow struct {
	ID           uuid.UUID      `db:"id"`
	Email        string         `db:"email"`
	Name         string         `db:"name"`
	AvatarURL    string         `db:"avatar_url"`
	PasswordHash sql.NullString `db:"password_hash"`
	Provider     string         `db:"provider"`
	IsVerified   bool           `db:"is_verified"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLoginAt  time.Time      `db:"last_login_at"`
}

func (r userRow) toUser() *User {
	user := &User{
		ID:          r.ID,
		Email:       r.Email,
		Name:        r.Name,
		AvatarURL:   r.AvatarURL,
		Provider:    r.Provider,
		IsVerified:  r.IsVerified,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		LastLoginAt: r.LastLoginAt,
	}
	if r.PasswordHash.Valid {
		hash := r.PasswordHash.String
		user.PasswordHash = &hash
	}
	return user
}

const userColumns = `id, email, name, avatar_url, password_hash, provider, is_verified, created_at, updated_at, last_login_at`

// FindUserByEmail looks up a user by email address.
func (r *PostgresRepository) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toUser(), nil
}

// FindUserByID looks up a user by primary key.
func (r *PostgresRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.toUser(), nil
}

// CreateUser inserts a new user into the database.
func (r *PostgresRepository) CreateUser(ctx context.Context, user User) (User, error) {
	const query = `
		INSERT INTO users (id, email, name, avatar_url, password_hash, provider, is_verified, created_at, updated_at, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	var hash sql.NullString
	if user.PasswordHash != nil {
		hash = sql.NullString{String: *user.PasswordHash, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		user.AvatarURL,
		hash,
		user.Provider,
		user.IsVerified,
		user.CreatedAt,
		user.UpdatedAt,
		user.LastLoginAt,
	)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// UpdateUserLogin updates the user's last login time and refreshes profile data.
func (r *PostgresRepository) UpdateUserLogin(ctx context.Context, id uuid.UUID, name, avatarURL string) error {
	const query = `
		UPDATE users
		SET name = $2, avatar_url = $3, last_login_at = $4, updated_at = $4
		WHERE id = $1
	`

	now := time.Now()
	_, err := r.db.ExecContext(ctx, query, id, name, avatarURL, now)
	return err
}

// CreateRefreshToken inserts a new refresh token row.
func (r *PostgresRepository) CreateRefreshToken(ctx context.Context, token RefreshToken, tokenHash string) error {
	const query = `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query,
		token.ID,
		token.UserID,
		tokenHash,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return err
}

// ConsumeRefreshToken deletes and returns the token row matching the hash.
// DELETE ... RETURNING keeps the consume atomic under concurrent presentations.
func (r *PostgresRepository) ConsumeRefreshToken(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	const query = `
		DELETE FROM refresh_tokens
		WHERE token_hash = $1
		RETURNING id, user_id, expires_at, created_at
	`

	var row struct {
		ID        uuid.UUID `db:"id"`
		UserID    uuid.UUID `db:"user_id"`
		ExpiresAt time.Time `db:"expires_at"`
		CreatedAt time.Time `db:"created_at"`
	}
	if err := r.db.GetContext(ctx, &row, query, tokenHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &RefreshToken{
		ID:        row.ID,
		UserID:    row.UserID,
		ExpiresAt: row.ExpiresAt,
		CreatedAt: row.CreatedAt,
	}, nil
}

// DeleteRefreshTokensForUser removes all refresh tokens issued to a user.
func (r *PostgresRepository) DeleteRefreshTokensForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpiredRefreshTokens removes refresh tokens past their expiry.
func (r *PostgresRepository) DeleteExpiredRefreshTokens(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
