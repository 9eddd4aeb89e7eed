package http

import (
	"net/http"
	"time"

	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type ElectionHandler struct {
	service ports.ElectionService
	tally   ports.TallyService
}

func NewElectionHandler(service ports.ElectionService, tally ports.TallyService) *ElectionHandler {
	return &ElectionHandler{
		service: service,
		tally:   tally,
	}
}

type createElectionRequest struct {
	Title             string            `json:"title"`
	Candidates        []string          `json:"candidates"`
	StartTime         time.Time         `json:"start_time"`
	EndTime           time.Time         `json:"end_time"`
	EligibleAgeRanges []domain.AgeRange `json:"eligible_age_ranges"`
}

type updateElectionRequest struct {
	Title             *string            `json:"title"`
	Candidates        []string           `json:"candidates"`
	StartTime         *time.Time         `json:"start_time"`
	EndTime           *time.Time         `json:"end_time"`
	EligibleAgeRanges *[]domain.AgeRange `json:"eligible_age_ranges"`
}

type scheduleRequest struct {
	NewEndTime *time.Time `json:"new_end_time"`
}

// Create godoc
// @Summary      Creates an election
// @Tags         admin
// @Router       /admin/elections [post]
func (h *ElectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createElectionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	view, err := h.service.Create(r.Context(), ports.CreateElectionInput{
		Title:             req.Title,
		Candidates:        req.Candidates,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		EligibleAgeRanges: req.EligibleAgeRanges,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *ElectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	var req updateElectionRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	view, err := h.service.Update(r.Context(), id, ports.UpdateElectionInput{
		Title:             req.Title,
		Candidates:        req.Candidates,
		StartTime:         req.StartTime,
		EndTime:           req.EndTime,
		EligibleAgeRanges: req.EligibleAgeRanges,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ElectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ElectionHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ElectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Suspend godoc
// @Summary      Suspends voting regardless of the schedule
// @Tags         admin
// @Router       /admin/elections/{id}/suspend [post]
func (h *ElectionHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	view, err := h.service.Suspend(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ElectionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	var req scheduleRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	view, err := h.service.Resume(r.Context(), id, req.NewEndTime)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ElectionHandler) Extend(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.NewEndTime == nil {
		writeError(w, r, domain.Invalid("new_end_time is required"))
		return
	}

	view, err := h.service.Extend(r.Context(), id, *req.NewEndTime)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ElectionHandler) ReleaseResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	view, err := h.service.ReleaseResults(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AdminResults returns the live tally whether or not it has been released.
func (h *ElectionHandler) AdminResults(w http.ResponseWriter, r *http.Request) {
	h.results(w, r, true)
}

func (h *ElectionHandler) PublicResults(w http.ResponseWriter, r *http.Request) {
	h.results(w, r, false)
}

func (h *ElectionHandler) results(w http.ResponseWriter, r *http.Request, includeUnreleased bool) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	results, err := h.tally.Results(r.Context(), id, includeUnreleased)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *ElectionHandler) ListForVoter(w http.ResponseWriter, r *http.Request) {
	voter, ok := currentUser(r)
	if !ok {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}
	views, err := h.service.ListForVoter(r.Context(), voter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ElectionHandler) GetForVoter(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	voter, ok := currentUser(r)
	if !ok {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}
	view, err := h.service.GetForVoter(r.Context(), voter, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
