package http

import (
	"log/slog"
	"net/http"

	"github.com/labqa/qualitylab/internal/domain"
	"github.com/labqa/qualitylab/internal/service"
	"github.com/labqa/qualitylab/pkg/httputil"
	"github.com/labqa/qualitylab/pkg/middleware"
)

// AuthHandler serves registration, login and every logout flavour.
type AuthHandler struct {
	auth       *service.AuthService
	revocation *service.RevocationService
	profiles   *service.ProfileService
	logger     *slog.Logger
}

func NewAuthHandler(auth *service.AuthService, revocation *service.RevocationService, profiles *service.ProfileService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, revocation: revocation, profiles: profiles, logger: logger}
}

// --- Request DTOs ---

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"required,notblank,max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the account and a fresh token pair.
type LoginResponse struct {
	User   *domain.User      `json:"user"`
	Tokens *domain.TokenPair `json:"tokens"`
}

// --- Handlers ---

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, err := h.auth.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, user)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	user, pair, err := h.auth.Login(r.Context(), service.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, LoginResponse{User: user, Tokens: pair})
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	n, err := h.revocation.LogoutSelf(r.Context(), actor.Email)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, revokedResponse{Revoked: n})
}

// LogoutSession handles DELETE /auth/sessions/current. The credential to
// revoke is the one in the refresh_token header.
func (h *AuthHandler) LogoutSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	n, err := h.revocation.LogoutSession(r.Context(), actor.Email, r.Header.Get(middleware.RefreshTokenHeader))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, revokedResponse{Revoked: n})
}

// LogoutOther handles POST /auth/logout/{email}
func (h *AuthHandler) LogoutOther(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	target, ok := emailParam(w, r)
	if !ok {
		return
	}
	n, err := h.revocation.LogoutOther(r.Context(), actor, target)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, revokedResponse{Revoked: n})
}

// LogoutAll handles POST /auth/logout-all
func (h *AuthHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	n, err := h.revocation.LogoutAll(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, revokedResponse{Revoked: n})
}

// RemoveUser handles DELETE /auth/users/{email}
func (h *AuthHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	email, ok := emailParam(w, r)
	if !ok {
		return
	}
	if err := h.profiles.Remove(r.Context(), actor, email); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, messageResponse{Message: "user removed"})
}
