package http

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/evote/internal/core/domain"
)

func TestParseIncidentQuery(t *testing.T) {
	electionID := uuid.New()
	q := url.Values{
		"category":    {"repeat-vote-attempt"},
		"severity":    {"high"},
		"resolved":    {"false"},
		"election_id": {electionID.String()},
		"from":        {"2026-03-01"},
		"to":          {"2026-03-10T12:00:00Z"},
		"page":        {"2"},
		"limit":       {"25"},
	}

	input, err := parseIncidentQuery(q)
	require.NoError(t, err)
	f := input.Filter
	require.NotNil(t, f.Category)
	assert.Equal(t, domain.CategoryRepeatVoteAttempt, *f.Category)
	assert.Equal(t, domain.SeverityHigh, *f.Severity)
	require.NotNil(t, f.Resolved)
	assert.False(t, *f.Resolved)
	assert.Equal(t, electionID, *f.ElectionID)
	assert.Nil(t, f.UserID)
	assert.True(t, f.From.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, f.To.Equal(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2, input.Page)
	assert.Equal(t, 25, input.Limit)
}

func TestParseIncidentQueryInvalid(t *testing.T) {
	for _, q := range []url.Values{
		{"resolved": {"maybe"}},
		{"user_id": {"nope"}},
		{"from": {"yesterday"}},
		{"page": {"two"}},
	} {
		_, err := parseIncidentQuery(q)
		assert.True(t, errors.Is(err, domain.ErrValidation), "query %v", q)
	}
}
