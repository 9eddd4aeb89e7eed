package domain

import "time"

// EffectiveStatus is the lifecycle state derived at read time.
type EffectiveStatus string

const (
	EffectiveScheduled EffectiveStatus = "scheduled"
	EffectiveOngoing   EffectiveStatus = "ongoing"
	EffectiveSuspended EffectiveStatus = "suspended"
	EffectiveClosed    EffectiveStatus = "closed"
)

// ResolveStatus maps the stored schedule and administrative flag to the
// effective status at now. Suspension always wins; otherwise the voting
// window is [start, end).
func ResolveStatus(status ElectionStatus, start, end, now time.Time) EffectiveStatus {
	switch {
	case status == StatusSuspended:
		return EffectiveSuspended
	case now.Before(start):
		return EffectiveScheduled
	case now.Before(end):
		return EffectiveOngoing
	default:
		return EffectiveClosed
	}
}

func (e *Election) EffectiveStatus(now time.Time) EffectiveStatus {
	return ResolveStatus(e.Status, e.StartTime, e.EndTime, now)
}

func (e *Election) IsOpen(now time.Time) bool {
	return e.EffectiveStatus(now) == EffectiveOngoing
}
