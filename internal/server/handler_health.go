package server

import (
	"net/http"
	"runtime"
	"time"
)

// Version is the API server version reported by /health.
const Version = "0.1.0"

type healthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version"`
	GoVersion string         `json:"go_version"`
	Uptime    string         `json:"uptime"`
	Routines  string         `json:"routines"`
	Store     string         `json:"store"`
	Queued    int            `json:"queued"`
	PoolSize  int            `json:"pool_size"`
	Events    map[string]int `json:"events,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	resp := healthResponse{
		Status:    "healthy",
		Version:   Version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Routines:  "not_started",
		Store:     "disabled",
		Queued:    s.hub.Queue().Count(),
		PoolSize:  s.hub.Pool().Size(),
	}
	if s.loop != nil {
		resp.Routines = "running"
	}
	if s.store != nil {
		counts, err := s.store.CountByEvent(r.Context())
		if err != nil {
			s.logger.Warn("health: count events", "error", err)
			resp.Store = "error"
			resp.Status = "degraded"
		} else {
			resp.Store = "ok"
			resp.Events = counts
		}
	}
	respondOK(w, reqID, resp)
}
