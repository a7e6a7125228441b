package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/tradebot/internal/request"
	"github.com/me/tradebot/pkg/model"
)

func (s *Server) poolInfo() model.PoolInfo {
	p := s.hub.Pool()
	return model.PoolInfo{
		Folder:   p.Folder(),
		Size:     p.Size(),
		Shuffled: p.Shuffled(),
		Keys:     p.Keys(),
	}
}

func (s *Server) handlePoolInfo(w http.ResponseWriter, r *http.Request) {
	respondOK(w, RequestIDFromContext(r.Context()), s.poolInfo())
}

func (s *Server) handlePoolReload(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	loaded := s.hub.Pool().Reload()
	s.logger.Info("pool reloaded", "loaded", loaded, "items", s.hub.Pool().Size())
	respondOK(w, reqID, map[string]any{
		"loaded": loaded,
		"pool":   s.poolInfo(),
	})
}

func (s *Server) handlePoolLookup(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	key := chi.URLParam(r, "key")

	rec, ok := s.hub.Pool().Lookup(key)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("pool item", key))
		return
	}
	respondOK(w, reqID, map[string]any{
		"key":       key,
		"label":     rec.Label(),
		"anonymous": rec.AnonymousAllowed(),
		"fields":    rec.Fields(),
	})
}

func (s *Server) handlePoolNext(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var body model.DistributeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, reqID, http.StatusBadRequest, &model.APIError{
			Code:    model.ErrValidation,
			Message: "Invalid JSON body: " + err.Error(),
		})
		return
	}
	if body.Requester.ID == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required field",
				model.FieldError{Field: "requester.id", Message: "requester.id is required"}))
		return
	}

	who := request.Identity{ID: body.Requester.ID, Name: body.Requester.Name}
	req, err := s.hub.Distribute(r.Context(), who, tierOrFree(body.Tier))
	if err != nil {
		respondDispatchError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, s.submitted(req))
}
