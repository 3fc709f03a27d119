package http

import (
	"errors"
	"net/http"

	"log/slog"

	"kerbside/internal/identity"
)

// AuthHandler exposes the identity service's auth endpoints.
type AuthHandler struct {
	service *identity.Service
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(service *identity.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{service: service, logger: logger}
}

// CheckEmail handles POST /api/v1/auth/check-email.
func (h *AuthHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := h.service.CheckEmail(r.Context(), payload.Email)
	if err != nil {
		h.logger.Error("check email", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check email")
		return
	}

	response := map[string]any{"exists": status.Exists}
	if status.Provider != "" {
		response["provider"] = status.Provider
	}
	writeJSON(w, http.StatusOK, response)
}

// Register handles POST /api/v1/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.service.Register(r.Context(), payload.Name, payload.Email, payload.Password)
	if err != nil {
		var fields identity.FieldErrors
		switch {
		case errors.As(err, &fields):
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": fields,
			})
		case errors.Is(err, identity.ErrEmailTaken):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error("register", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to register")
		}
		return
	}

	h.logger.Info("user registered", "user_id", user.ID, "email", user.Email)
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// Login handles POST /api/v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, tokens, err := h.service.Login(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		h.logger.Error("login", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to login")
		return
	}

	h.logger.Info("user logged in", "user_id", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "tokens": tokens})
}

// OAuth handles POST /api/v1/auth/oauth: create-or-link for claims asserted
// by an external provider.
func (h *AuthHandler) OAuth(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Provider  string `json:"provider"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.Provider == "" || payload.Email == "" {
		writeError(w, http.StatusBadRequest, "provider and email are required")
		return
	}

	user, tokens, err := h.service.LinkOrCreateOAuth(r.Context(), payload.Provider, payload.Email, payload.Name, payload.AvatarURL)
	if err != nil {
		var conflict *identity.ProviderConflictError
		if errors.As(err, &conflict) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":    "email is already registered with a different provider",
				"provider": conflict.Provider,
			})
			return
		}
		h.logger.Error("oauth link", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to link account")
		return
	}

	h.logger.Info("oauth login", "user_id", user.ID, "provider", payload.Provider)
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "tokens": tokens})
}

// Refresh handles POST /api/v1/auth/refresh. The presented refresh token is
// consumed whether or not rotation succeeds.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	tokens, err := h.service.Refresh(r.Context(), payload.RefreshToken)
	if err != nil {
		if errors.Is(err, identity.ErrRefreshRejected) {
			writeError(w, http.StatusUnauthorized, "refresh token rejected")
			return
		}
		h.logger.Error("refresh", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to refresh tokens")
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

// Logout handles POST /api/v1/auth/logout, revoking the presented refresh token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.Revoke(r.Context(), payload.RefreshToken); err != nil {
		h.logger.Error("logout", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /api/v1/me for the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		unauthorized(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}
