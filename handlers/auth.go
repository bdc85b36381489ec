package handlers

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-playground/validator/v10"

	"otportal/middleware"
	"otportal/session"
)

type AuthHandler struct {
	sessions *session.Service
	validate *validator.Validate
}

func NewAuthHandler(sessions *session.Service) *AuthHandler {
	return &AuthHandler{sessions: sessions, validate: validator.New()}
}

type loginRequest struct {
	IdentityToken string `json:"identity_token" validate:"required"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	ExpiresAt   string      `json:"expires_at"`
	User        interface{} `json:"user"`
}

// Login exchanges a validated IdP token for a portal session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorPayload(w, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, r, err)
		return
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	sess, user, err := h.sessions.Login(r.Context(), req.IdentityToken, session.Fingerprint{
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: sess.AccessToken,
		ExpiresAt:   sess.TokenExpiresAt.Format("2006-01-02T15:04:05Z07:00"),
		User:        user,
	})
}

// Logout revokes the current session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := middleware.GetTokenFromContext(r.Context())
	if token == "" {
		WriteError(w, r, session.ErrUnauthorized)
		return
	}
	if err := h.sessions.Revoke(token); err != nil {
		WriteError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}
