package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionLifecycle(t *testing.T) {
	t.Parallel()

	s := StateDisconnected
	steps := []struct {
		event ConnectionEvent
		want  ConnectionState
	}{
		{EventAuthorize, StateAuthorizationPending},
		{EventGrant, StateConnected},
		{EventSyncStart, StateSyncing},
		{EventSyncDone, StateIdle},
		{EventSyncStart, StateSyncing},
		{EventSyncDone, StateIdle},
		{EventDisconnect, StateDisconnected},
	}
	for _, step := range steps {
		next, err := s.Next(step.event)
		require.NoError(t, err, "%s on %s", step.event, s)
		assert.Equal(t, step.want, next)
		s = next
	}
}

func TestDenyReturnsToDisconnected(t *testing.T) {
	t.Parallel()

	next, err := StateAuthorizationPending.Next(EventDeny)
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, next)
}

func TestInvalidTransitionsAreRejected(t *testing.T) {
	t.Parallel()

	invalid := []struct {
		from  ConnectionState
		event ConnectionEvent
	}{
		{StateDisconnected, EventGrant},
		{StateDisconnected, EventSyncStart},
		{StateDisconnected, EventDisconnect},
		{StateConnected, EventGrant},
		{StateSyncing, EventSyncStart},
		{StateSyncing, EventAuthorize},
		{StateIdle, EventSyncDone},
		{StateAuthorizationPending, EventSyncStart},
		{ConnectionState("bogus"), EventAuthorize},
	}
	for _, tt := range invalid {
		next, err := tt.from.Next(tt.event)
		assert.ErrorIs(t, err, ErrInvalidTransition, "%s on %s", tt.event, tt.from)
		assert.Equal(t, tt.from, next)
	}
}

func TestLinked(t *testing.T) {
	t.Parallel()

	assert.False(t, StateDisconnected.Linked())
	assert.False(t, StateAuthorizationPending.Linked())
	assert.True(t, StateConnected.Linked())
	assert.True(t, StateSyncing.Linked())
	assert.True(t, StateIdle.Linked())
}
