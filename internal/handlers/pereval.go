package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"pereval-backend/internal/models"
	"pereval-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// PerevalHandler handles pass-submission HTTP requests.
type PerevalHandler struct {
	service *services.PerevalService
}

// NewPerevalHandler creates a new pereval handler.
func NewPerevalHandler(service *services.PerevalService) *PerevalHandler {
	return &PerevalHandler{service: service}
}

// submitResponse is the POST /submitData response body.
type submitResponse struct {
	Status  int     `json:"status"`
	Message *string `json:"message"`
	ID      *int64  `json:"id"`
}

// stateResponse is the body of status-gated writes: state 1 means the
// edit was applied, state 0 that it was refused.
type stateResponse struct {
	State   int     `json:"state"`
	Message *string `json:"message,omitempty"`
}

// SubmitData handles POST /submitData.
func (h *PerevalHandler) SubmitData(w http.ResponseWriter, r *http.Request) {
	var req services.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := "invalid JSON body"
		respondJSON(w, submitResponse{Status: http.StatusBadRequest, Message: &msg}, http.StatusBadRequest)
		return
	}

	id, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		var vErr *services.ValidationError
		if errors.As(err, &vErr) {
			msg := vErr.Error()
			respondJSON(w, submitResponse{Status: http.StatusBadRequest, Message: &msg}, http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Str("email", req.User.Email).Msg("Failed to persist submission")
		msg := "failed to persist submission"
		respondJSON(w, submitResponse{Status: http.StatusInternalServerError, Message: &msg}, http.StatusInternalServerError)
		return
	}

	log.Info().Int64("pereval_id", id).Str("email", req.User.Email).Msg("Submission accepted")
	respondJSON(w, submitResponse{Status: http.StatusOK, ID: &id}, http.StatusOK)
}

// GetPereval handles GET /submitData/{id}.
func (h *PerevalHandler) GetPereval(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, "invalid id", http.StatusBadRequest)
		return
	}

	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("pereval_id", id).Msg("Failed to get pereval")
		respondError(w, "failed to get record", http.StatusInternalServerError)
		return
	}
	if p == nil {
		respondError(w, "record not found", http.StatusNotFound)
		return
	}

	respondJSON(w, p, http.StatusOK)
}

// UpdatePereval handles PATCH /submitData/{id}.
func (h *PerevalHandler) UpdatePereval(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, "invalid id", http.StatusBadRequest)
		return
	}

	var patch models.PerevalPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		msg := "invalid JSON body"
		respondJSON(w, stateResponse{State: 0, Message: &msg}, http.StatusBadRequest)
		return
	}

	outcome, err := h.service.Update(r.Context(), id, &patch)
	h.respondOutcome(w, id, outcome, err)
}

// ModeratePereval handles PATCH /submitData/{id}/status.
func (h *PerevalHandler) ModeratePereval(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, "invalid id", http.StatusBadRequest)
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := "invalid JSON body"
		respondJSON(w, stateResponse{State: 0, Message: &msg}, http.StatusBadRequest)
		return
	}

	outcome, err := h.service.Moderate(r.Context(), id, req.Status)
	h.respondOutcome(w, id, outcome, err)
}

// ListPerevals handles GET /submitData/?user__email=...
func (h *PerevalHandler) ListPerevals(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("user__email")

	perevals, err := h.service.ListByEmail(r.Context(), email)
	if err != nil {
		var vErr *services.ValidationError
		if errors.As(err, &vErr) {
			respondError(w, vErr.Error(), http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Str("email", email).Msg("Failed to list perevals")
		respondError(w, "failed to list records", http.StatusInternalServerError)
		return
	}

	respondJSON(w, perevals, http.StatusOK)
}

// respondOutcome maps the three-state result of a gated write onto the
// wire: applied and refused are both 200 with state 1/0, absence is 404.
func (h *PerevalHandler) respondOutcome(w http.ResponseWriter, id int64, outcome models.UpdateOutcome, err error) {
	if err != nil {
		var vErr *services.ValidationError
		if errors.As(err, &vErr) {
			msg := vErr.Error()
			respondJSON(w, stateResponse{State: 0, Message: &msg}, http.StatusBadRequest)
			return
		}
		log.Error().Err(err).Int64("pereval_id", id).Msg("Failed to apply edit")
		msg := "failed to apply edit"
		respondJSON(w, stateResponse{State: 0, Message: &msg}, http.StatusInternalServerError)
		return
	}

	switch outcome {
	case models.UpdateNotFound:
		respondError(w, "record not found", http.StatusNotFound)
	case models.UpdateRefused:
		msg := "record is already moderated, edit refused"
		respondJSON(w, stateResponse{State: 0, Message: &msg}, http.StatusOK)
	default:
		respondJSON(w, stateResponse{State: 1}, http.StatusOK)
	}
}
