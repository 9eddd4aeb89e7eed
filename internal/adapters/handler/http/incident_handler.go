package http

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type IncidentHandler struct {
	service ports.IncidentService
}

func NewIncidentHandler(service ports.IncidentService) *IncidentHandler {
	return &IncidentHandler{
		service: service,
	}
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type bulkResolveRequest struct {
	IDs   []uuid.UUID `json:"ids"`
	Notes string      `json:"notes"`
}

type bulkResolveResponse struct {
	Resolved int64 `json:"resolved"`
}

// List godoc
// @Summary      Lists fraud incidents, newest first
// @Tags         incidents
// @Param        category     query string false "incident category"
// @Param        severity     query string false "severity"
// @Param        resolved     query bool   false "resolution state"
// @Param        election_id  query string false "election"
// @Param        user_id      query string false "voter"
// @Param        from         query string false "RFC 3339 lower bound"
// @Param        to           query string false "RFC 3339 upper bound"
// @Param        page         query int    false "page, from 1"
// @Param        limit        query int    false "page size, at most 100"
// @Router       /admin/incidents [get]
func (h *IncidentHandler) List(w http.ResponseWriter, r *http.Request) {
	input, err := parseIncidentQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.service.List(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *IncidentHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *IncidentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid incident id")
		return
	}
	incident, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (h *IncidentHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid incident id")
		return
	}
	admin, ok := currentUser(r)
	if !ok {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}
	var req notesRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	incident, err := h.service.Resolve(r.Context(), id, admin.ID, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (h *IncidentHandler) Unresolve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid incident id")
		return
	}
	incident, err := h.service.Unresolve(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (h *IncidentHandler) Annotate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid incident id")
		return
	}
	var req notesRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	incident, err := h.service.Annotate(r.Context(), id, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, incident)
}

func (h *IncidentHandler) BulkResolve(w http.ResponseWriter, r *http.Request) {
	admin, ok := currentUser(r)
	if !ok {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}
	var req bulkResolveRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	n, err := h.service.BulkResolve(r.Context(), req.IDs, admin.ID, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResolveResponse{Resolved: n})
}

func parseIncidentQuery(q url.Values) (ports.ListIncidentsInput, error) {
	var input ports.ListIncidentsInput
	f := &input.Filter

	if v := q.Get("category"); v != "" {
		c := domain.IncidentCategory(v)
		f.Category = &c
	}
	if v := q.Get("severity"); v != "" {
		s := domain.Severity(v)
		f.Severity = &s
	}
	if v := q.Get("resolved"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return input, domain.Invalid("resolved must be true or false")
		}
		f.Resolved = &b
	}

	var err error
	if f.ElectionID, err = queryUUID(q, "election_id"); err != nil {
		return input, err
	}
	if f.UserID, err = queryUUID(q, "user_id"); err != nil {
		return input, err
	}
	if f.From, err = queryTime(q, "from"); err != nil {
		return input, err
	}
	if f.To, err = queryTime(q, "to"); err != nil {
		return input, err
	}
	if input.Page, err = queryInt(q, "page"); err != nil {
		return input, err
	}
	if input.Limit, err = queryInt(q, "limit"); err != nil {
		return input, err
	}
	return input, nil
}

func queryUUID(q url.Values, name string) (*uuid.UUID, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, domain.Invalid("%s must be a UUID", name)
	}
	return &id, nil
}

// queryTime accepts RFC 3339 timestamps or plain dates.
func queryTime(q url.Values, name string) (*time.Time, error) {
	v := q.Get(name)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, domain.Invalid("%s must be an RFC 3339 timestamp or a date", name)
	}
	return &t, nil
}

func queryInt(q url.Values, name string) (int, error) {
	v := q.Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.Invalid("%s must be an integer", name)
	}
	return n, nil
}
