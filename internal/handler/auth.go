package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/sidestake/exchange/internal/auth"
	"github.com/sidestake/exchange/internal/domain"
)

// AuthHandler exchanges a static API key for a short-lived JWT. The chat
// frontend holds the service key; operators hold the admin key.
type AuthHandler struct {
	jwt        *auth.JWTManager
	serviceKey string
	adminKey   string
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(jwt *auth.JWTManager, serviceKey, adminKey string) *AuthHandler {
	return &AuthHandler{jwt: jwt, serviceKey: serviceKey, adminKey: adminKey}
}

type tokenRequest struct {
	APIKey string `json:"api_key"`
}

type tokenResponse struct {
	Token string `json:"token"`
	Realm string `json:"realm"`
}

// Token handles POST /auth/token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := DecodeJSON(r, &req); err != nil {
		RespondError(w, domain.ErrValidation("invalid request body"))
		return
	}
	if req.APIKey == "" {
		RespondError(w, domain.ErrValidation("api_key is required"))
		return
	}

	var realm auth.Realm
	var subject string
	switch {
	case h.adminKey != "" && subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.adminKey)) == 1:
		realm, subject = auth.RealmAdmin, "operator"
	case h.serviceKey != "" && subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.serviceKey)) == 1:
		realm, subject = auth.RealmService, "chat-service"
	default:
		RespondError(w, domain.ErrUnauthorized("unknown api key"))
		return
	}

	token, err := h.jwt.GenerateToken(realm, subject)
	if err != nil {
		RespondError(w, domain.ErrInternal("generate token", err))
		return
	}
	RespondJSON(w, http.StatusOK, tokenResponse{Token: token, Realm: string(realm)})
}
