package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// providerPassword is the wire value the identity service uses for
// password-bound accounts.
const providerPassword = "credentials"

// Identity is the client-side view of an account. It is immutable from this
// side; the identity service owns it.
type Identity struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	AvatarURL string    `json:"avatar_url"`
}

// Tokens is a freshly issued credential pair as it appears on the wire.
// Expiry is recomputed locally when the pair enters the vault.
type Tokens struct {
	Access  string
	Refresh string
}

// ProviderClaims are the profile claims asserted by an external OAuth
// provider. Verifying the provider handshake is the surrounding framework's
// job; this client forwards the claims as given.
type ProviderClaims struct {
	Email     string
	Name      string
	AvatarURL string
}

// Client is a JSON client for the identity service's auth endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs a Client. A nil httpClient gets a 10 second timeout
// default.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

type wireTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type authResponse struct {
	User   *Identity  `json:"user"`
	Tokens wireTokens `json:"tokens"`
}

type errorResponse struct {
	Error    string            `json:"error"`
	Fields   map[string]string `json:"fields"`
	Provider string            `json:"provider"`
}

// CheckEmail asks the identity service for the disposition of an email.
// On any transport or non-2xx failure the error wraps ErrLookupFailed; the
// caller must not treat a failed lookup as "unregistered".
func (c *Client) CheckEmail(ctx context.Context, email string) (exists bool, provider string, err error) {
	resp, err := c.post(ctx, "/api/v1/auth/check-email", map[string]string{"email": email})
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", ErrLookupFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, "", fmt.Errorf("%w: identity service returned status %d", ErrLookupFailed, resp.StatusCode)
	}

	var payload struct {
		Exists   bool   `json:"exists"`
		Provider string `json:"provider"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, "", fmt.Errorf("%w: decode response: %v", ErrLookupFailed, err)
	}
	return payload.Exists, payload.Provider, nil
}

// Login exchanges a password credential for an identity and token pair.
func (c *Client) Login(ctx context.Context, email, password string) (*Identity, Tokens, error) {
	resp, err := c.post(ctx, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, Tokens{}, fmt.Errorf("call login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, Tokens{}, ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Tokens{}, fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	return decodeAuthResponse(resp)
}

// Register creates a password account. The identity service issues no tokens
// on this call; a login follows.
func (c *Client) Register(ctx context.Context, name, email, password string) (*Identity, error) {
	resp, err := c.post(ctx, "/api/v1/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("call register: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict {
		wire := decodeErrorResponse(resp)
		return nil, &RegistrationError{Message: wire.Error, Fields: wire.Fields}
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("register returned status %d", resp.StatusCode)
	}

	var payload struct {
		User *Identity `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode register response: %w", err)
	}
	return payload.User, nil
}

// LinkOrCreate asks the identity service to create or link an account for
// externally asserted provider claims. A conflicting binding surfaces as a
// *ProviderConflictError naming the provider the email already belongs to.
func (c *Client) LinkOrCreate(ctx context.Context, provider string, claims ProviderClaims) (*Identity, Tokens, error) {
	resp, err := c.post(ctx, "/api/v1/auth/oauth", map[string]string{
		"provider":   provider,
		"email":      claims.Email,
		"name":       claims.Name,
		"avatar_url": claims.AvatarURL,
	})
	if err != nil {
		return nil, Tokens{}, fmt.Errorf("call oauth: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		wire := decodeErrorResponse(resp)
		return nil, Tokens{}, &ProviderConflictError{Provider: wire.Provider}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Tokens{}, fmt.Errorf("oauth returned status %d", resp.StatusCode)
	}

	return decodeAuthResponse(resp)
}

// Refresh rotates a token pair. Any failure wraps ErrRefreshFailed; the
// presented refresh token must be assumed consumed either way.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	resp, err := c.post(ctx, "/api/v1/auth/refresh", map[string]string{
		"refresh_token": refreshToken,
	})
	if err != nil {
		return Tokens{}, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Tokens{}, fmt.Errorf("%w: identity service returned status %d", ErrRefreshFailed, resp.StatusCode)
	}

	var payload wireTokens
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Tokens{}, fmt.Errorf("%w: decode response: %v", ErrRefreshFailed, err)
	}
	return Tokens{Access: payload.AccessToken, Refresh: payload.RefreshToken}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.http.Do(req)
}

func decodeAuthResponse(resp *http.Response) (*Identity, Tokens, error) {
	var payload authResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, Tokens{}, fmt.Errorf("decode auth response: %w", err)
	}
	if payload.User == nil {
		return nil, Tokens{}, fmt.Errorf("auth response missing user")
	}
	return payload.User, Tokens{
		Access:  payload.Tokens.AccessToken,
		Refresh: payload.Tokens.RefreshToken,
	}, nil
}

func decodeErrorResponse(resp *http.Response) errorResponse {
	var wire errorResponse
	// A malformed error body still maps to the typed failure; the zero value
	// carries no detail.
	_ = json.NewDecoder(resp.Body).Decode(&wire)
	return wire
}
