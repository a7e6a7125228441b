package server

import (
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/chi/v5"
)

type endpointInfo struct {
	Path        string   `json:"path"`
	Methods     []string `json:"methods"`
	Description string   `json:"description,omitempty"`
}

type discoveryResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Description string         `json:"description"`
	Endpoints   []endpointInfo `json:"endpoints"`
}

var endpointDocs = map[string]string{
	"/api/v1/health":            "Server health and version",
	"/api/v1/requests":          "List, submit or cancel all queued requests",
	"/api/v1/requests/{id}":     "Status or cancellation of one requester's request",
	"/api/v1/pool":              "Distribution pool summary",
	"/api/v1/pool/reload":       "Reload the distribution folder",
	"/api/v1/pool/next":         "Queue an anonymous request with the next eligible pool item",
	"/api/v1/pool/{key}":        "Decoded fields of one pool item",
	"/api/v1/history":           "Lifecycle events, filterable by requester and event",
	"/api/v1/sse/requests/{id}": "Server-sent status updates for one requester",
}

// endpoints lists the registered routes, one entry per path.
func (s *Server) endpoints() []endpointInfo {
	methods := make(map[string][]string)
	chi.Walk(s.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		route = strings.TrimSuffix(route, "/")
		if route == "/api/v1" {
			return nil
		}
		methods[route] = append(methods[route], method)
		return nil
	})

	paths := make([]string, 0, len(methods))
	for p := range methods {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]endpointInfo, 0, len(paths))
	for _, p := range paths {
		m := methods[p]
		sort.Strings(m)
		out = append(out, endpointInfo{Path: p, Methods: m, Description: endpointDocs[p]})
	}
	return out
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), discoveryResponse{
		Name:        "tradebot API",
		Version:     "v1",
		Description: "Tiered exchange queue with a folder-backed distribution pool",
		Endpoints:   s.endpoints(),
	})
}
