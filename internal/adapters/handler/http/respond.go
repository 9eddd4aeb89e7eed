package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// Order matters only where sentinels could overlap; they do not today.
var errorMappings = []errorMapping{
	{domain.ErrValidation, http.StatusBadRequest, "validation_failed"},
	{domain.ErrElectionNotOpen, http.StatusConflict, "election_not_open"},
	{domain.ErrInvalidOption, http.StatusBadRequest, "invalid_option"},
	{domain.ErrFaceVerificationFailed, http.StatusBadRequest, "face_verification_failed"},
	{domain.ErrOTPVerificationFailed, http.StatusBadRequest, "otp_verification_failed"},
	{domain.ErrAgeIneligible, http.StatusForbidden, "age_ineligible"},
	{domain.ErrDuplicateVote, http.StatusConflict, "duplicate_vote"},
	{domain.ErrInvalidOrExpiredCode, http.StatusBadRequest, "invalid_or_expired_code"},
	{domain.ErrProfileIncomplete, http.StatusBadRequest, "profile_incomplete"},
	{domain.ErrDeliveryFailed, http.StatusBadGateway, "delivery_failed"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{domain.ErrResultsNotReleased, http.StatusForbidden, "results_not_released"},
	{domain.ErrElectionNotFound, http.StatusNotFound, "election_not_found"},
	{domain.ErrIncidentNotFound, http.StatusNotFound, "incident_not_found"},
	{domain.ErrBallotNotFound, http.StatusNotFound, "ballot_not_found"},
	{domain.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// writeError maps domain errors to a status and a machine-readable code.
// Anything unmapped is logged and reported as a plain 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if !errors.Is(err, m.err) {
			continue
		}
		message := m.err.Error()
		var rejection *domain.RejectionError
		if errors.As(err, &rejection) {
			message = rejection.Message
		}
		writeJSON(w, m.status, errorResponse{Error: m.code, Message: message})
		return
	}

	slog.ErrorContext(r.Context(), "request failed", "error", err, "method", r.Method, "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// decodeOptionalJSON treats an empty body as an empty object.
func decodeOptionalJSON(r *http.Request, v any) error {
	if err := decodeJSON(r, v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func pathID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	return id, err == nil
}

// provenance reads the client address after middleware.RealIP has rewritten
// RemoteAddr from the forwarding headers.
func provenance(r *http.Request) domain.Provenance {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	if ip == "" {
		ip = "unknown"
	}
	return domain.Provenance{IPAddress: ip, UserAgent: r.UserAgent()}
}
