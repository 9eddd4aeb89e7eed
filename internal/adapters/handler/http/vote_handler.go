package http

import (
	"net/http"

	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

type VoteHandler struct {
	service ports.VoteService
}

func NewVoteHandler(service ports.VoteService) *VoteHandler {
	return &VoteHandler{
		service: service,
	}
}

type castVoteRequest struct {
	Option            string `json:"option"`
	FaceVerified      bool   `json:"face_verified"`
	VerificationToken string `json:"verification_token"`
}

type castVoteResponse struct {
	Message string         `json:"message"`
	Ballot  *domain.Ballot `json:"ballot"`
}

// Cast godoc
// @Summary      Casts the caller's ballot
// @Tags         votes
// @Router       /elections/{id}/votes [post]
func (h *VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
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

	var req castVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	ballot, err := h.service.Cast(r.Context(), ports.CastVoteInput{
		ElectionID:        electionID,
		Voter:             voter,
		Option:            req.Option,
		FaceVerified:      req.FaceVerified,
		VerificationToken: req.VerificationToken,
		Provenance:        provenance(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, castVoteResponse{Message: "vote cast successfully", Ballot: ballot})
}

func (h *VoteHandler) MyBallot(w http.ResponseWriter, r *http.Request) {
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

	ballot, err := h.service.MyBallot(r.Context(), electionID, voter.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ballot)
}

func (h *VoteHandler) MyBallots(w http.ResponseWriter, r *http.Request) {
	voter, ok := currentUser(r)
	if !ok {
		writeError(w, r, domain.ErrUnauthorized)
		return
	}

	ballots, err := h.service.MyBallots(r.Context(), voter.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ballots)
}
