// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package leader

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/config"
	"github.com/luxfi/rabia/metrics"
	"github.com/luxfi/rabia/validators"
	"github.com/stretchr/testify/require"
)

func sortedNodes(n int) []rabia.NodeID {
	out := make([]rabia.NodeID, n)
	for i := range out {
		out[i] = ids.GenerateTestNodeID()
	}
	return out
}

func drainChange(t *testing.T, m *Manager) rabia.LeaderChange {
	t.Helper()
	select {
	case c := <-m.Changes():
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for leader change")
		return rabia.LeaderChange{}
	}
}

func TestLocalModeElectsMinNodeID(t *testing.T) {
	require := require.New(t)
	members := sortedNodes(3)
	set := validators.NewSet(members)
	minID := set.List()[0]

	m := New(members[0], config.LocalElection, set, nil, 0, metrics.NoOp(), log.NewNoOpLogger())

	m.OnTopologyEvent(rabia.NodeAdded{NodeID: members[0], NewTopology: set.List()})
	change := drainChange(t, m)
	require.NotNil(change.Leader)
	require.Equal(minID, *change.Leader)
}

func TestQuorumLossClearsLeaderThenReaffirms(t *testing.T) {
	require := require.New(t)
	members := sortedNodes(3)
	set := validators.NewSet(members)

	m := New(members[0], config.LocalElection, set, nil, 0, metrics.NoOp(), log.NewNoOpLogger())
	m.OnTopologyEvent(rabia.NodeAdded{NodeID: members[0], NewTopology: set.List()})
	drainChange(t, m)

	m.OnTopologyEvent(rabia.QuorumStateNotification{State: rabia.QuorumDisappeared})
	lost := drainChange(t, m)
	require.Nil(lost.Leader)

	m.OnTopologyEvent(rabia.QuorumStateNotification{State: rabia.QuorumEstablished})
	m.OnTopologyEvent(rabia.NodeAdded{NodeID: members[0], NewTopology: set.List()})
	reaffirmed := drainChange(t, m)
	require.NotNil(reaffirmed.Leader)
}

type fakeSubmitter struct {
	submitted chan struct {
		candidate rabia.NodeID
		view      uint64
	}
}

func newFakeSubmitter() *fakeSubmitter {
	return &fakeSubmitter{submitted: make(chan struct {
		candidate rabia.NodeID
		view      uint64
	}, 4)}
}

func (f *fakeSubmitter) SubmitLeaderProposal(_ context.Context, candidate rabia.NodeID, view uint64) error {
	f.submitted <- struct {
		candidate rabia.NodeID
		view      uint64
	}{candidate, view}
	return nil
}

func TestConsensusModeSubmitsAndCommits(t *testing.T) {
	require := require.New(t)
	members := sortedNodes(3)
	set := validators.NewSet(members)
	self := set.List()[0]

	sub := newFakeSubmitter()
	m := New(self, config.ConsensusElection, set, sub, 10*time.Millisecond, metrics.NoOp(), log.NewNoOpLogger())
	m.OnTopologyEvent(rabia.NodeAdded{NodeID: self, NewTopology: set.List()})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	var submitted struct {
		candidate rabia.NodeID
		view      uint64
	}
	select {
	case submitted = <-sub.submitted:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for leader proposal submission")
	}
	require.Equal(self, submitted.candidate)

	m.OnLeaderCommitted(submitted.candidate, submitted.view)
	change := drainChange(t, m)
	require.NotNil(change.Leader)
	require.Equal(self, *change.Leader)
	require.True(change.IsSelf)
}

func TestStaleCommitIsRejected(t *testing.T) {
	require := require.New(t)
	members := sortedNodes(3)
	set := validators.NewSet(members)
	self := set.List()[0]

	m := New(self, config.ConsensusElection, set, nil, time.Second, metrics.NoOp(), log.NewNoOpLogger())
	m.OnLeaderCommitted(self, 5)
	drainChange(t, m)

	m.OnLeaderCommitted(members[1], 3)
	select {
	case c := <-m.Changes():
		t.Fatalf("unexpected change for stale commit: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}
