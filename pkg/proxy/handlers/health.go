package handlers

import (
	"net/http"
	"time"

	"kirohq/gateway/pkg/proxy"
)

// healthResponse is the liveness payload served on / and /health.
type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	AuthManagers int `json:"auth_managers_cached"`

	InflightRequests int   `json:"inflight_requests"`
	QueuedRequests   int   `json:"queued_requests"`
	TotalRequests    int64 `json:"total_requests"`

	PendingUsageRows int `json:"pending_usage_rows"`
}

// Health handles GET / and GET /health. It reports liveness only and
// never touches the database or the upstream.
func (d *Deps) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: d.Version,
	}
	if !d.StartedAt.IsZero() {
		resp.UptimeSeconds = int64(time.Since(d.StartedAt).Seconds())
	}
	if d.Pool != nil {
		resp.AuthManagers = d.Pool.ManagerCount()
	}
	if d.Gate != nil {
		stats := d.Gate.Stats()
		resp.InflightRequests = stats.Active
		resp.QueuedRequests = stats.Queued
		resp.TotalRequests = stats.TotalRequests
	}
	if d.Usage != nil {
		resp.PendingUsageRows = d.Usage.PendingCount()
	}

	proxy.WriteJSON(w, http.StatusOK, resp)
}
