package broadcast

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vncsmyrnk/evote/internal/core/ports"
	"github.com/vncsmyrnk/evote/internal/metrics"
)

func newTestHub(buffer int) *Hub {
	return NewHub(buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishRoutesByChannel(t *testing.T) {
	hub := newTestHub(4)
	election := ports.ElectionChannel(uuid.New())
	other := ports.ElectionChannel(uuid.New())

	sub := hub.Subscribe(election, ports.AdminChannel())
	defer sub.Close()

	hub.Publish(election, ports.EventVoteCast, "tally")
	hub.Publish(other, ports.EventVoteCast, "ignored")
	hub.Publish(ports.AdminChannel(), ports.EventFraudDetected, "incident")

	first := <-sub.Events()
	assert.Equal(t, election.String(), first.Channel)
	assert.Equal(t, ports.EventVoteCast, first.Event)

	second := <-sub.Events()
	assert.Equal(t, "admin-room", second.Channel)
	assert.Equal(t, "incident", second.Payload)

	assert.Empty(t, sub.Events())
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	hub := newTestHub(1)
	voter := ports.VoterChannel(uuid.New())
	sub := hub.Subscribe(voter)
	defer sub.Close()

	before := testutil.ToFloat64(metrics.BroadcastDroppedTotal.WithLabelValues(string(ports.ChannelVoter)))
	hub.Publish(voter, ports.EventVoteConfirmed, 1)
	hub.Publish(voter, ports.EventVoteConfirmed, 2)

	got := <-sub.Events()
	assert.Equal(t, 1, got.Payload)
	after := testutil.ToFloat64(metrics.BroadcastDroppedTotal.WithLabelValues(string(ports.ChannelVoter)))
	assert.Equal(t, before+1, after)
}

func TestCloseUnsubscribes(t *testing.T) {
	hub := newTestHub(1)
	election := ports.ElectionChannel(uuid.New())

	sub := hub.Subscribe(election)
	require.Equal(t, 1, hub.Subscribers(election))

	sub.Close()
	sub.Close()
	assert.Zero(t, hub.Subscribers(election))

	_, open := <-sub.Events()
	assert.False(t, open)

	hub.Publish(election, ports.EventVoteCast, nil)
}
