package controllers

import (
	"net/http"

	"storefront-api/models"
	"storefront-api/realtime"
	"storefront-api/utils"
)

// LiveController streams order events to admin dashboards over a websocket.
// Browsers cannot set headers on websocket requests, so the session token
// travels in the token query parameter.
type LiveController struct {
	Hub    *realtime.Hub
	Tokens *utils.TokenManager
}

func NewLiveController(hub *realtime.Hub, tokens *utils.TokenManager) *LiveController {
	return &LiveController{Hub: hub, Tokens: tokens}
}

func (lc *LiveController) Orders(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		utils.WriteError(w, http.StatusUnauthorized, "Token required")
		return
	}
	claims, err := lc.Tokens.Parse(token)
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid token")
		return
	}
	if claims.Role != models.RoleAdmin {
		utils.WriteError(w, http.StatusForbidden, "Forbidden: insufficient role")
		return
	}
	lc.Hub.Serve(w, r)
}
