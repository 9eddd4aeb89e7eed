package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	CodeTTL    = 5 * time.Minute
	CodeDigits = 6
)

type VerificationCode struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	ElectionID uuid.UUID  `json:"election_id"`
	Email      string     `json:"email"`
	Code       string     `json:"-"`
	Used       bool       `json:"used"`
	UsedAt     *time.Time `json:"used_at,omitempty"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Live reports whether the code is unused and not yet past its expiry.
func (c *VerificationCode) Live(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}

// VerificationMarker is the opaque token handed back after a successful
// redemption. It is not stored; admission only checks for a used code.
type VerificationMarker struct {
	Token    string        `json:"verification_token"`
	ValidFor time.Duration `json:"-"`
}
