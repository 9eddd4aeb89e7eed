package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type CodeHandler struct {
	service ports.CodeService
}

func NewCodeHandler(service ports.CodeService) *CodeHandler {
	return &CodeHandler{
		service: service,
	}
}

type issueCodeResponse struct {
	Message string `json:"message"`
	*ports.CodeIssue
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

type verifyCodeResponse struct {
	Verified          bool   `json:"verified"`
	VerificationToken string `json:"verification_token"`
	ValidForSeconds   int    `json:"valid_for_seconds"`
}

// Issue godoc
// @Summary      Sends a verification code, or resends the one still live
// @Tags         codes
// @Router       /elections/{id}/code [post]
func (h *CodeHandler) Issue(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, h.service.Issue)
}

// Resend godoc
// @Summary      Invalidates outstanding codes and sends a fresh one
// @Tags         codes
// @Router       /elections/{id}/code/resend [post]
func (h *CodeHandler) Resend(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, h.service.Resend)
}

func (h *CodeHandler) Verify(w http.ResponseWriter, r *http.Request) {
	electionID, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	voter, ok := currentUser(r)
	if !ok {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}

	var req verifyCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	marker, err := h.service.Verify(r.Context(), voter, electionID, req.Code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyCodeResponse{
		Verified:          true,
		VerificationToken: marker.Token,
		ValidForSeconds:   int(marker.ValidFor.Seconds()),
	})
}

type issueFunc func(ctx context.Context, voter *domain.User, electionID uuid.UUID) (*ports.CodeIssue, error)

func (h *CodeHandler) send(w http.ResponseWriter, r *http.Request, issue issueFunc) {
	electionID, ok := pathID(r, "id")
	if !ok {
		badRequest(w, "invalid election id")
		return
	}
	voter, ok := currentUser(r)
	if !ok {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}

	issued, err := issue(r.Context(), voter, electionID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	message := "verification code sent"
	if issued.Resent {
		message = "verification code resent"
	}
	writeJSON(w, http.StatusOK, issueCodeResponse{Message: message, CodeIssue: issued})
}
