package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/diagnostician/internal/domain"
	"github.com/Harshitk-cp/diagnostician/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CaseHandler struct {
	svc *service.InvestigationService
}

func NewCaseHandler(svc *service.InvestigationService) *CaseHandler {
	return &CaseHandler{svc: svc}
}

type startCaseRequest struct {
	CaseID      string `json:"case_id,omitempty"`
	Description string `json:"description"`
}

type answerRequest struct {
	Answer string `json:"answer"`
}

type testResultRequest struct {
	Name       string  `json:"name"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
}

type testResultResponse struct {
	CaseID  uuid.UUID             `json:"case_id"`
	Updates []domain.BeliefUpdate `json:"updates"`
}

type beliefsResponse struct {
	CaseID  uuid.UUID             `json:"case_id"`
	Beliefs []domain.BeliefRecord `json:"beliefs"`
	Entropy float64               `json:"entropy"`
}

// caseError maps service errors onto HTTP statuses. Anything unrecognized
// is a 500 with a generic message.
func caseError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrCaseNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrEmptyDescription),
		errors.Is(err, service.ErrEmptyAnswer),
		errors.Is(err, service.ErrTestNameMissing):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotSuspended),
		errors.Is(err, service.ErrCaseFinalized):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func caseID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	return id, err == nil
}

func (h *CaseHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := uuid.Nil
	if req.CaseID != "" {
		parsed, err := uuid.Parse(req.CaseID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid case_id")
			return
		}
		id = parsed
	}

	state, err := h.svc.Start(r.Context(), id, req.Description)
	if err != nil {
		caseError(w, err, "failed to start case")
		return
	}

	writeJSON(w, http.StatusCreated, service.OutcomeOf(state))
}

func (h *CaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid case id")
		return
	}

	state, err := h.svc.Get(r.Context(), id)
	if err != nil {
		caseError(w, err, "failed to get case")
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (h *CaseHandler) Answer(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid case id")
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	state, err := h.svc.Resume(r.Context(), id, req.Answer)
	if err != nil {
		caseError(w, err, "failed to resume case")
		return
	}

	writeJSON(w, http.StatusOK, service.OutcomeOf(state))
}

func (h *CaseHandler) RecordTest(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid case id")
		return
	}

	var req testResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	updates, err := h.svc.RecordTestResult(r.Context(), id, req.Name, req.Value, req.Confidence)
	if err != nil {
		caseError(w, err, "failed to record test result")
		return
	}
	if updates == nil {
		updates = []domain.BeliefUpdate{}
	}

	writeJSON(w, http.StatusOK, testResultResponse{CaseID: id, Updates: updates})
}

func (h *CaseHandler) Beliefs(w http.ResponseWriter, r *http.Request) {
	id, ok := caseID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid case id")
		return
	}

	beliefs, entropy, err := h.svc.Beliefs(r.Context(), id)
	if err != nil {
		caseError(w, err, "failed to get beliefs")
		return
	}

	writeJSON(w, http.StatusOK, beliefsResponse{CaseID: id, Beliefs: beliefs, Entropy: entropy})
}
