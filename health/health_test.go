package health

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		status  Status
		state   State
		healthy bool
	}{
		{NewHealthy("sink", "ok"), StateHealthy, true},
		{NewDegraded("channel/0", "evicting"), StateDegraded, false},
		{NewUnhealthy("sink", "down"), StateUnhealthy, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			assert.Equal(t, tt.state, tt.status.State)
			assert.Equal(t, tt.healthy, tt.status.Healthy)
			assert.False(t, tt.status.Timestamp.IsZero())
		})
	}
	assert.True(t, NewDegraded("x", "").IsDegraded())
	assert.True(t, NewUnhealthy("x", "").IsUnhealthy())
}

func TestAggregateWorstWins(t *testing.T) {
	tests := []struct {
		name string
		subs []Status
		want State
	}{
		{"empty", nil, StateHealthy},
		{"all healthy", []Status{NewHealthy("a", ""), NewHealthy("b", "")}, StateHealthy},
		{"one degraded", []Status{NewHealthy("a", ""), NewDegraded("b", "")}, StateDegraded},
		{"unhealthy beats degraded", []Status{NewDegraded("a", ""), NewUnhealthy("b", "")}, StateUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate("ringkit", tt.subs)
			assert.Equal(t, tt.want, got.State)
			assert.Len(t, got.SubStatuses, len(tt.subs))
		})
	}
}

func TestFromErrorSanitizes(t *testing.T) {
	assert.True(t, FromError("sink", nil, "delivering").IsHealthy())

	err := fmt.Errorf("dial nats://admin@10.0.0.5:4222 failed: token=abc123")
	s := FromError("sink", err, "")
	require.True(t, s.IsUnhealthy())
	assert.NotContains(t, s.Message, "10.0.0.5")
	assert.NotContains(t, s.Message, "abc123")
	assert.Contains(t, s.Message, "[URL]")
	assert.Contains(t, s.Message, "[REDACTED]")
}

func TestMonitor(t *testing.T) {
	m := NewMonitor()
	m.Update("sink", NewHealthy("ignored", "ok"))
	m.Update("channel/1", NewDegraded("", "evicting"))

	s, ok := m.Get("sink")
	require.True(t, ok)
	assert.Equal(t, "sink", s.Component)

	agg := m.AggregateHealth("ringkit")
	assert.Equal(t, StateDegraded, agg.State)
	require.Len(t, agg.SubStatuses, 2)
	assert.Equal(t, "channel/1", agg.SubStatuses[0].Component)

	m.Remove("channel/1")
	assert.True(t, m.AggregateHealth("ringkit").IsHealthy())
}
