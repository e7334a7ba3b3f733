package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/dropDatabas3/gateway/internal/http/helpers"
)

// Check es una dependencia que /readyz sondea.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthController struct {
	checks []Check
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// GET /readyz. 503 si alguna dependencia no responde.
func (c *HealthController) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := readyResponse{Status: "ok", Checks: map[string]string{}}
	status := http.StatusOK
	for _, ch := range c.checks {
		if ch.Ping == nil {
			continue
		}
		if err := ch.Ping(ctx); err != nil {
			resp.Checks[ch.Name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[ch.Name] = "ok"
	}
	w.Header().Set("Cache-Control", "no-store")
	helpers.WriteJSON(w, status, resp)
}
