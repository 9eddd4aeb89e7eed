package domain

import (
	"time"

	"github.com/google/uuid"
)

type IncidentCategory string

const (
	CategoryFaceVerificationFailed  IncidentCategory = "face-verification-failed"
	CategoryRepeatVoteAttempt       IncidentCategory = "repeat-vote-attempt"
	CategorySuspiciousSharedAddress IncidentCategory = "suspicious-shared-address"
	CategoryAgeIneligible           IncidentCategory = "age-ineligible"
	CategoryCodeVerificationFailed  IncidentCategory = "code-verification-failed"
	CategoryAnomalousActivity       IncidentCategory = "anomalous-system-activity"
	CategoryUnauthorizedAccess      IncidentCategory = "unauthorized-access"
	CategoryDataTampering           IncidentCategory = "data-tampering"
	CategoryInvalidOption           IncidentCategory = "invalid-option"
	CategoryMultiDevice             IncidentCategory = "multi-device"
)

var incidentCategories = map[IncidentCategory]struct{}{
	CategoryFaceVerificationFailed:  {},
	CategoryRepeatVoteAttempt:       {},
	CategorySuspiciousSharedAddress: {},
	CategoryAgeIneligible:           {},
	CategoryCodeVerificationFailed:  {},
	CategoryAnomalousActivity:       {},
	CategoryUnauthorizedAccess:      {},
	CategoryDataTampering:           {},
	CategoryInvalidOption:           {},
	CategoryMultiDevice:             {},
}

func (c IncidentCategory) Valid() bool {
	_, ok := incidentCategories[c]
	return ok
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

type Resolution struct {
	Resolved   bool       `json:"resolved"`
	ResolvedBy *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Notes      string     `json:"notes"`
}

type FraudIncident struct {
	ID         uuid.UUID        `json:"id"`
	UserID     uuid.UUID        `json:"user_id"`
	ElectionID *uuid.UUID       `json:"election_id,omitempty"`
	Category   IncidentCategory `json:"category"`
	Severity   Severity         `json:"severity"`
	Details    string           `json:"details"`
	Metadata   map[string]any   `json:"metadata"`
	Provenance Provenance       `json:"provenance"`
	Resolution Resolution       `json:"resolution"`
	CreatedAt  time.Time        `json:"created_at"`
}

type CountBreakdown struct {
	Total      int64 `json:"total"`
	Resolved   int64 `json:"resolved"`
	Unresolved int64 `json:"unresolved"`
}

type IncidentStatistics struct {
	CountBreakdown
	ByCategory map[IncidentCategory]CountBreakdown `json:"by_category"`
	BySeverity map[Severity]CountBreakdown         `json:"by_severity"`
}
