package main

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"kerbside/internal/identity"
)

// seedLocalUsers returns demo accounts for local development. Password
// accounts all use "parkshare-demo".
func seedLocalUsers() []identity.User {
	now := time.Now().UTC()

	hash, err := bcrypt.GenerateFromPassword([]byte("parkshare-demo"), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	demoHash := string(hash)

	return []identity.User{
		{
			ID:           uuid.New(),
			Email:        "host@example.com",
			Name:         "Dana Host",
			PasswordHash: &demoHash,
			Provider:     identity.ProviderPassword,
			IsVerified:   true,
			CreatedAt:    now,
			UpdatedAt:    now,
			LastLoginAt:  now,
		},
		{
			ID:           uuid.New(),
			Email:        "driver@example.com",
			Name:         "Sam Driver",
			PasswordHash: &demoHash,
			Provider:     identity.ProviderPassword,
			CreatedAt:    now.Add(1 * time.Minute),
			UpdatedAt:    now.Add(1 * time.Minute),
			LastLoginAt:  now.Add(1 * time.Minute),
		},
		{
			ID:          uuid.New(),
			Email:       "google-user@example.com",
			Name:        "Alex Google",
			AvatarURL:   "https://lh3.googleusercontent.com/a/demo",
			Provider:    "google",
			IsVerified:  true,
			CreatedAt:   now.Add(2 * time.Minute),
			UpdatedAt:   now.Add(2 * time.Minute),
			LastLoginAt: now.Add(2 * time.Minute),
		},
	}
}
