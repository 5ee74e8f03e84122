package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Jackzmc/flashforge-api-server/internal/api"
	"github.com/Jackzmc/flashforge-api-server/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token exchanges the configured password for a bearer token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		api.BadRequest(w, "Invalid request body")
		return
	}

	token, expires, err := h.auth.IssueToken(req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		api.Unauthorized(w, err.Error())
		return
	}
	if err != nil {
		api.Error(w, http.StatusInternalServerError, api.CodeInternal, err.Error())
		return
	}

	api.JSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expires})
}
