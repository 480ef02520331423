package handlers

import (
	"net/http"
	"time"

	"github.com/baharkarakas/travel-credits/internal/api/httpx"
	"github.com/baharkarakas/travel-credits/internal/auth"
)

// AuthHandler signs in the admin console. There is a single admin
// principal whose bcrypt hash comes from configuration.
type AuthHandler struct {
	TM           *auth.TokenManager
	PasswordHash string
}

func NewAuthHandler(tm *auth.TokenManager, passwordHash string) *AuthHandler {
	return &AuthHandler{TM: tm, PasswordHash: passwordHash}
}

type loginReq struct {
	Password string `json:"password"`
}

type tokenResp struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"` // seconds
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.PasswordHash == "" {
		httpx.WriteError(w, http.StatusNotImplemented, "login_disabled", "admin login is not configured", nil)
		return
	}
	var req loginReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request", nil)
		return
	}
	if err := auth.VerifyPassword(req.Password, h.PasswordHash); err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
		return
	}
	h.issue(w, "admin")
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "bad_request", "invalid request", nil)
		return
	}
	claims, err := h.TM.ParseRefresh(req.RefreshToken)
	if err != nil || claims.Role != auth.RoleAdmin {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token", nil)
		return
	}
	h.issue(w, claims.Subject)
}

func (h *AuthHandler) issue(w http.ResponseWriter, subject string) {
	access, refresh, exp, err := h.TM.GeneratePair(subject, auth.RoleAdmin)
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "token generation failed", nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResp{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Until(exp).Round(time.Second).Seconds()),
	})
}
