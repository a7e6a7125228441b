package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/tradebot/internal/dispatch"
	"github.com/me/tradebot/internal/queue"
	"github.com/me/tradebot/internal/request"
	"github.com/me/tradebot/pkg/model"
)

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var body model.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}

	var missing []model.FieldError
	if body.Requester.ID == "" {
		missing = append(missing, model.FieldError{Field: "requester.id", Message: "requester.id is required"})
	}
	if body.Kind == "" {
		missing = append(missing, model.FieldError{Field: "kind", Message: "kind is required"})
	}
	if len(missing) > 0 {
		respondError(w, reqID, http.StatusBadRequest, model.NewValidationError("missing required field", missing...))
		return
	}

	kind, err := request.ParseKind(body.Kind)
	if err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError(err.Error(), model.FieldError{Field: "kind", Message: "one of link, clone, dump, anonymous"}))
		return
	}

	t := dispatch.Ticket{
		Requester:  request.Identity{ID: body.Requester.ID, Name: body.Requester.Name},
		Kind:       kind,
		Tier:       tierOrFree(body.Tier),
		Code:       request.RandomCode,
		Record:     body.Record,
		PoolKey:    body.PoolKey,
		SourcePath: body.SourcePath,
	}
	if body.Code != nil {
		t.Code = *body.Code
	}

	req, err := s.hub.Submit(r.Context(), t)
	if err != nil {
		respondDispatchError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, s.submitted(req))
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	entries := s.hub.Entries()
	respondList(w, reqID, entries, &model.Pagination{
		Total:  len(entries),
		Limit:  len(entries),
		Offset: 0,
	})
}

func (s *Server) handleGetStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	st, err := s.hub.Status(request.Identity{ID: id})
	if err != nil {
		respondDispatchError(w, reqID, err)
		return
	}
	respondOK(w, reqID, st)
}

func (s *Server) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.hub.Cancel(r.Context(), request.Identity{ID: id}); err != nil {
		respondDispatchError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{
		"requester_id": id,
		"state":        model.RequestStateCanceled,
	})
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	n := s.hub.CancelAll(r.Context())
	respondOK(w, reqID, map[string]any{"canceled": n})
}

func (s *Server) submitted(req *request.Request) model.Submitted {
	who := req.Requester()
	out := model.Submitted{
		Requester:    model.Requester{ID: who.ID, Name: who.Name},
		Kind:         req.Kind().String(),
		Code:         req.Code(),
		Synchronized: req.Synchronized(),
		Position:     s.hub.Queue().Position(req.Equal),
	}
	if p := req.Payload(); p != nil && !p.IsEmpty() {
		out.Payload = p.Label()
	}
	return out
}

func tierOrFree(t *uint32) queue.Tier {
	if t == nil {
		return queue.TierFree
	}
	return queue.Tier(*t)
}
