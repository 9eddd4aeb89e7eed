package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResolveStatus(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(8 * time.Hour)

	tests := []struct {
		name   string
		status ElectionStatus
		now    time.Time
		want   EffectiveStatus
	}{
		{"before start", StatusScheduled, start.Add(-time.Second), EffectiveScheduled},
		{"at start", StatusScheduled, start, EffectiveOngoing},
		{"inside window", StatusActive, start.Add(time.Hour), EffectiveOngoing},
		{"at end", StatusActive, end, EffectiveClosed},
		{"after end", StatusActive, end.Add(time.Hour), EffectiveClosed},
		{"suspended inside window", StatusSuspended, start.Add(time.Hour), EffectiveSuspended},
		{"suspended before start", StatusSuspended, start.Add(-time.Hour), EffectiveSuspended},
		{"suspended after end", StatusSuspended, end.Add(time.Hour), EffectiveSuspended},
		{"completed flag inside window", StatusCompleted, start.Add(time.Hour), EffectiveOngoing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveStatus(tt.status, start, end, tt.now))
		})
	}
}

func TestElectionIsOpenTracksClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	e := &Election{Status: StatusScheduled, StartTime: start, EndTime: start.Add(time.Hour)}

	assert.False(t, e.IsOpen(start.Add(-time.Minute)))
	assert.True(t, e.IsOpen(start.Add(time.Minute)))
	assert.False(t, e.IsOpen(start.Add(time.Hour)))

	e.Status = StatusSuspended
	assert.False(t, e.IsOpen(start.Add(time.Minute)))
}
