package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/me/tradebot/internal/request"
	"github.com/me/tradebot/pkg/model"
)

// handleSSERequest streams a requester's status via Server-Sent Events
// until the request reaches a terminal state.
// GET /api/v1/sse/requests/{id}
func (s *Server) handleSSERequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	reqID := RequestIDFromContext(r.Context())
	who := request.Identity{ID: id}

	st, err := s.hub.Status(who)
	if err != nil {
		respondDispatchError(w, reqID, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	if err := sendSSEEvent(w, flusher, "init", st); err != nil {
		s.logger.Debug("sse client disconnected", "requester", id, "error", err)
		return
	}
	if st.State.IsTerminal() {
		sendSSEEvent(w, flusher, "complete", st)
		return
	}

	ticker := time.NewTicker(s.sseInterval)
	defer ticker.Stop()

	last := st
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			st, err = s.hub.Status(who)
			if err != nil {
				return
			}

			if st.State != last.State || st.Position != last.Position {
				if err := sendSSEEvent(w, flusher, "update", st); err != nil {
					s.logger.Debug("sse client disconnected", "requester", id)
					return
				}
				last = st
			} else {
				fmt.Fprintf(w, ": heartbeat\n\n")
				flusher.Flush()
			}

			if st.State.IsTerminal() {
				sendSSEEvent(w, flusher, "complete", st)
				return
			}
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data model.QueueStatus) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
