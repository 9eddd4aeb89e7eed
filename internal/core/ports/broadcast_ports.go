package ports

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vncsmyrnk/evote/internal/core/domain"
)

type ChannelKind string

const (
	ChannelElection ChannelKind = "election"
	ChannelAdmin    ChannelKind = "admin"
	ChannelVoter    ChannelKind = "user"
)

const (
	EventVoteCast          = "vote-cast"
	EventVoteConfirmed     = "vote-confirmed"
	EventElectionUpdated   = "election-updated"
	EventElectionSuspended = "election-suspended"
	EventElectionResumed   = "election-resumed"
	EventElectionExtended  = "election-extended"
	EventResultsReleased   = "results-released"
	EventFraudDetected     = "fraud-detected"
	EventFraudResolved     = "fraud-resolved"
)

type Channel struct {
	Kind ChannelKind
	ID   uuid.UUID
}

func ElectionChannel(id uuid.UUID) Channel { return Channel{Kind: ChannelElection, ID: id} }

func AdminChannel() Channel { return Channel{Kind: ChannelAdmin} }

func VoterChannel(id uuid.UUID) Channel { return Channel{Kind: ChannelVoter, ID: id} }

func (c Channel) String() string {
	if c.Kind == ChannelAdmin {
		return "admin-room"
	}
	return fmt.Sprintf("%s-%s", c.Kind, c.ID)
}

// Publisher fans an event out to the subscribers of a channel. Delivery is
// best effort and never blocks the caller.
type Publisher interface {
	Publish(channel Channel, event string, payload any)
}

type TallyEvent struct {
	ElectionID uuid.UUID              `json:"election_id"`
	Action     string                 `json:"action,omitempty"`
	Status     domain.EffectiveStatus `json:"status,omitempty"`
	Results    []domain.OptionCount   `json:"results"`
	TotalVotes int64                  `json:"total_votes"`
	Timestamp  time.Time              `json:"timestamp"`
}

type VoteConfirmedEvent struct {
	ElectionID uuid.UUID `json:"election_id"`
	Option     string    `json:"option"`
	Timestamp  time.Time `json:"timestamp"`
}

type ElectionEvent struct {
	ElectionID uuid.UUID  `json:"election_id"`
	NewEndTime *time.Time `json:"new_end_time,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

type FraudEvent struct {
	IncidentID uuid.UUID               `json:"incident_id"`
	Category   domain.IncidentCategory `json:"category,omitempty"`
	Severity   domain.Severity         `json:"severity,omitempty"`
	UserID     *uuid.UUID              `json:"user_id,omitempty"`
	ElectionID *uuid.UUID              `json:"election_id,omitempty"`
	ResolvedBy *uuid.UUID              `json:"resolved_by,omitempty"`
	Timestamp  time.Time               `json:"timestamp"`
}

// Envelope is what a live subscriber receives.
type Envelope struct {
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type Subscription interface {
	Events() <-chan Envelope
	Close()
}

type Subscriber interface {
	Subscribe(channels ...Channel) Subscription
}
