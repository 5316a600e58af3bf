// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package topology

import (
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/metrics"
	"github.com/luxfi/rabia/validators"
	"github.com/stretchr/testify/require"
)

func nodes(n int) []rabia.NodeID {
	out := make([]rabia.NodeID, n)
	for i := range out {
		out[i] = ids.GenerateTestNodeID()
	}
	return out
}

func drainEvent(t *testing.T, m *Manager) rabia.TopologyEvent {
	t.Helper()
	select {
	case ev := <-m.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for topology event")
		return nil
	}
}

func TestQuorumEstablishesAtMajority(t *testing.T) {
	require := require.New(t)
	members := nodes(5)
	set := validators.NewSet(members)
	m := New(set, metrics.NoOp(), log.NewNoOpLogger(), nil)

	require.Equal(rabia.QuorumDisappeared, m.CurrentState())

	m.OnNodeAdded(members[0])
	require.IsType(rabia.NodeAdded{}, drainEvent(t, m))
	require.Equal(rabia.QuorumDisappeared, m.CurrentState())

	m.OnNodeAdded(members[1])
	drainEvent(t, m)

	m.OnNodeAdded(members[2])
	drainEvent(t, m)
	ev := drainEvent(t, m)
	notif, ok := ev.(rabia.QuorumStateNotification)
	require.True(ok)
	require.Equal(rabia.QuorumEstablished, notif.State)
	require.Equal(rabia.QuorumEstablished, m.CurrentState())
}

func TestQuorumLostOnNodeDown(t *testing.T) {
	require := require.New(t)
	members := nodes(3)
	set := validators.NewSet(members)
	m := New(set, metrics.NoOp(), log.NewNoOpLogger(), nil)

	for _, n := range members {
		m.OnNodeAdded(n)
		drainEvent(t, m)
	}
	drainEvent(t, m) // quorum established notification
	require.Equal(rabia.QuorumEstablished, m.CurrentState())

	m.OnNodeDown(members[0])
	drainEvent(t, m) // NodeDown
	ev := drainEvent(t, m)
	notif := ev.(rabia.QuorumStateNotification)
	require.Equal(rabia.QuorumDisappeared, notif.State)
}

func TestTotalLossSynthesizesLeaderChangeNil(t *testing.T) {
	require := require.New(t)
	members := nodes(1)
	set := validators.NewSet(members)
	sink := make(chan rabia.LeaderChange, 1)
	m := New(set, metrics.NoOp(), log.NewNoOpLogger(), sink)

	m.OnNodeAdded(members[0])
	drainEvent(t, m)
	drainEvent(t, m) // quorum established

	m.OnNodeDown(members[0])
	drainEvent(t, m) // NodeDown
	drainEvent(t, m) // quorum disappeared

	select {
	case lc := <-sink:
		require.Nil(lc.Leader)
		require.False(lc.IsSelf)
	case <-time.After(time.Second):
		t.Fatal("expected synthesized LeaderChange(nil)")
	}
}

func TestDuplicateNodeAddedIsNoOp(t *testing.T) {
	require := require.New(t)
	members := nodes(2)
	set := validators.NewSet(members)
	m := New(set, metrics.NoOp(), log.NewNoOpLogger(), nil)

	m.OnNodeAdded(members[0])
	drainEvent(t, m)

	m.OnNodeAdded(members[0])
	select {
	case ev := <-m.Events():
		t.Fatalf("unexpected second event for duplicate add: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	require.Len(m.LiveTopology(), 1)
}
