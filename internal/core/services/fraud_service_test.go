package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/evote/internal/core/domain"
	"github.com/vncsmyrnk/evote/internal/core/ports"
)

func TestRecordPublishesToAdmins(t *testing.T) {
	h := newHarness(t)
	electionID := uuid.New()
	userID := uuid.New()

	incident := h.fraud.Record(context.Background(), ports.RecordIncidentInput{
		Category:   domain.CategoryFaceVerificationFailed,
		Severity:   domain.SeverityHigh,
		UserID:     userID,
		ElectionID: &electionID,
		Details:    "face mismatch",
		Provenance: domain.Provenance{IPAddress: "10.0.0.9"},
	})
	require.NotNil(t, incident)
	assert.Equal(t, baseTime, incident.CreatedAt)
	assert.NotNil(t, incident.Metadata)
	assert.False(t, incident.Resolution.Resolved)

	events := h.publisher.on(ports.AdminChannel())
	require.Len(t, events, 1)
	assert.Equal(t, ports.EventFraudDetected, events[0].event)
	payload := events[0].payload.(ports.FraudEvent)
	assert.Equal(t, incident.ID, payload.IncidentID)
	assert.Equal(t, domain.SeverityHigh, payload.Severity)
	assert.Equal(t, userID, *payload.UserID)
}

func TestRecordStoreFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.incidents.failWrite = true

	incident := h.fraud.Record(context.Background(), ports.RecordIncidentInput{
		Category: domain.CategoryDataTampering,
		Severity: domain.SeverityCritical,
		UserID:   uuid.New(),
	})
	assert.Nil(t, incident)
	assert.Empty(t, h.publisher.on(ports.AdminChannel()))
}

func TestCorrelateRepeatAttempts(t *testing.T) {
	tests := []struct {
		name      string
		prior     int
		age       time.Duration
		escalated bool
	}{
		{name: "below threshold", prior: 2, escalated: false},
		{name: "at threshold", prior: 3, escalated: true},
		{name: "outside window", prior: 3, age: 25 * time.Hour, escalated: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			electionID := uuid.New()
			userID := uuid.New()

			h.clock.Set(baseTime.Add(-tt.age))
			for i := 0; i < tt.prior; i++ {
				h.fraud.Record(ctx, ports.RecordIncidentInput{
					Category:   domain.CategoryCodeVerificationFailed,
					Severity:   domain.SeverityMedium,
					UserID:     userID,
					ElectionID: &electionID,
				})
			}
			h.clock.Set(baseTime)

			h.fraud.Correlate(ctx, userID, electionID, domain.Provenance{})

			got := h.incidents.byCategory(domain.CategoryAnomalousActivity)
			if tt.escalated {
				require.Len(t, got, 1)
				assert.Equal(t, domain.SeverityCritical, got[0].Severity)
			} else {
				assert.Empty(t, got)
			}
		})
	}
}

func TestCorrelateSharedAddress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	electionID := uuid.New()
	first, second := uuid.New(), uuid.New()
	from := domain.Provenance{IPAddress: "203.0.113.7"}

	h.fraud.Record(ctx, ports.RecordIncidentInput{
		Category:   domain.CategoryInvalidOption,
		Severity:   domain.SeverityLow,
		UserID:     first,
		ElectionID: &electionID,
		Provenance: from,
	})

	// One voter on the address is not suspicious
	h.fraud.Correlate(ctx, first, electionID, from)
	assert.Empty(t, h.incidents.byCategory(domain.CategorySuspiciousSharedAddress))

	h.fraud.Record(ctx, ports.RecordIncidentInput{
		Category:   domain.CategoryInvalidOption,
		Severity:   domain.SeverityLow,
		UserID:     second,
		ElectionID: &electionID,
		Provenance: from,
	})
	h.fraud.Correlate(ctx, second, electionID, from)

	got := h.incidents.byCategory(domain.CategorySuspiciousSharedAddress)
	require.Len(t, got, 1)
	assert.Equal(t, domain.SeverityHigh, got[0].Severity)
	assert.Equal(t, 2, got[0].Metadata["user_count"])
	assert.Equal(t, []string{first.String()}, got[0].Metadata["other_users"])
}

func TestCorrelateIgnoresUnknownAddress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	electionID := uuid.New()
	unknown := domain.Provenance{IPAddress: "unknown"}

	for i := 0; i < 2; i++ {
		h.fraud.Record(ctx, ports.RecordIncidentInput{
			Category:   domain.CategoryInvalidOption,
			Severity:   domain.SeverityLow,
			UserID:     uuid.New(),
			ElectionID: &electionID,
			Provenance: unknown,
		})
	}
	h.fraud.Correlate(ctx, uuid.New(), electionID, unknown)
	assert.Empty(t, h.incidents.byCategory(domain.CategorySuspiciousSharedAddress))
}
