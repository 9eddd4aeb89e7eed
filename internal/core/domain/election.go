package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ElectionStatus is the administrative flag stored with an election.
type ElectionStatus string

const (
	StatusScheduled ElectionStatus = "scheduled"
	StatusActive    ElectionStatus = "active"
	StatusCompleted ElectionStatus = "completed"
	StatusSuspended ElectionStatus = "suspended"
)

type AgeRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

func (r AgeRange) Contains(age int) bool {
	return age >= r.Min && age <= r.Max
}

type Election struct {
	ID                uuid.UUID      `json:"id"`
	Title             string         `json:"title"`
	Candidates        []string       `json:"candidates"`
	StartTime         time.Time      `json:"start_time"`
	EndTime           time.Time      `json:"end_time"`
	Status            ElectionStatus `json:"status"`
	EligibleAgeRanges []AgeRange     `json:"eligible_age_ranges"`
	ResultsReleased   bool           `json:"results_released"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// CandidateIndex returns the position of option in the candidate list, or -1.
// The option is trimmed before the exact comparison.
func (e *Election) CandidateIndex(option string) int {
	option = strings.TrimSpace(option)
	if option == "" {
		return -1
	}
	for i, c := range e.Candidates {
		if c == option {
			return i
		}
	}
	return -1
}

func (e *Election) HasCandidate(option string) bool {
	return e.CandidateIndex(option) >= 0
}

// Eligible reports whether age falls in any configured range. An election
// without ranges is unrestricted.
func (e *Election) Eligible(age int) bool {
	if len(e.EligibleAgeRanges) == 0 {
		return true
	}
	for _, r := range e.EligibleAgeRanges {
		if r.Contains(age) {
			return true
		}
	}
	return false
}

// NormalizeCandidates trims every option, drops empty ones and requires at
// least two unique entries.
func NormalizeCandidates(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			return nil, Invalid("duplicate candidate %q", c)
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	if len(out) < 2 {
		return nil, Invalid("at least two candidates are required")
	}
	return out, nil
}

func ValidateAgeRanges(ranges []AgeRange) error {
	for _, r := range ranges {
		if r.Min < 0 || r.Max < r.Min {
			return Invalid("invalid age range [%d, %d]", r.Min, r.Max)
		}
	}
	return nil
}

func ValidateSchedule(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return Invalid("start and end time are required")
	}
	if !end.After(start) {
		return Invalid("end time must be after start time")
	}
	return nil
}
