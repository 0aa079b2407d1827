package models

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string       `json:"status"` // "healthy" or "degraded"
	Uptime  string       `json:"uptime"`
	Session SessionStats `json:"session"`
	Version string       `json:"version"`
}

// SessionStats reports the state of the pooled browser session.
type SessionStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
