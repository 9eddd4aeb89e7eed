package domain

import (
	"time"

	"github.com/google/uuid"
)

// Provenance is the request metadata attached to ballots and incidents.
type Provenance struct {
	IPAddress string `json:"ip_address"`
	UserAgent string `json:"user_agent"`
}

type Ballot struct {
	ID             uuid.UUID  `json:"id"`
	ElectionID     uuid.UUID  `json:"election_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Option         string     `json:"option"`
	VerifiedByFace bool       `json:"verified_by_face"`
	Provenance     Provenance `json:"provenance"`
	CreatedAt      time.Time  `json:"created_at"`
}

// BallotSummary is a voter's own ballot joined with its election title.
type BallotSummary struct {
	ElectionID    uuid.UUID `json:"election_id"`
	ElectionTitle string    `json:"election"`
	Option        string    `json:"option"`
	CreatedAt     time.Time `json:"timestamp"`
}
