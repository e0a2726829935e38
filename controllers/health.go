package controllers

import (
	"context"
	"net/http"
	"time"

	"storefront-api/store"
	"storefront-api/utils"
)

// HealthController reports liveness and the state of the store connection
type HealthController struct {
	Store       store.Store
	Environment string
	Version     string
	started     time.Time
}

func NewHealthController(s store.Store, environment, version string) *HealthController {
	return &HealthController{Store: s, Environment: environment, Version: version, started: time.Now()}
}

// Health answers 200 when the store responds to a ping and 503 otherwise
func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status, code, database := "ok", http.StatusOK, hc.Store.Kind()+":connected"
	if err := hc.Store.Ping(ctx); err != nil {
		status, code, database = "degraded", http.StatusServiceUnavailable, hc.Store.Kind()+":disconnected"
	}
	utils.WriteJSON(w, code, utils.M{
		"status":      status,
		"uptime":      time.Since(hc.started).Round(time.Second).Seconds(),
		"environment": hc.Environment,
		"version":     hc.Version,
		"database":    database,
		"timestamp":   time.Now().UTC(),
	})
}
