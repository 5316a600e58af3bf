// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package engine

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/config"
	"github.com/luxfi/rabia/metrics"
	"github.com/luxfi/rabia/network"
	"github.com/stretchr/testify/require"
)

func testConfig(members []rabia.NodeID, self rabia.NodeID, mode config.LeaderElectionMode) config.Config {
	cfg := config.Default()
	cfg.ExpectedCluster = members
	cfg.SelfNodeID = self
	cfg.PhaseTimeout = 150 * time.Millisecond
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 50 * time.Millisecond
	cfg.MissThreshold = 3
	cfg.ProposalRetryDelay = 30 * time.Millisecond
	cfg.MaxBatchSize = 8
	cfg.MaxBatchDelay = 5 * time.Millisecond
	cfg.MaxOutstandingItems = 64
	cfg.LeaderElectionMode = mode
	cfg.BenchlistMissThreshold = 5
	cfg.BenchlistMaxDuration = time.Second
	return cfg
}

func stopEngines(engines []*Engine) {
	for _, e := range engines {
		e.Stop()
	}
}

func awaitEngineCommit(t *testing.T, e *Engine, timeout time.Duration) rabia.Committed {
	t.Helper()
	select {
	case c := <-e.Committed():
		return c
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for a commit")
		return rabia.Committed{}
	}
}

// Scenario: wiring a NodeAdded topology event all the way through to
// quorum establishment and a committed proposal, with nothing in the test
// calling OnQuorumState or OnLeaderChange directly — that is Engine's job.
func TestEngineWiresTopologyToQuorumAndCommit(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fabric := network.NewFabric()
	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()
	c := ids.GenerateTestNodeID()
	members := []rabia.NodeID{a, b, c}

	var engines []*Engine
	for _, id := range members {
		dialer := &network.LoopbackDialer{Fabric: fabric, Self: id}
		cfg := testConfig(members, id, config.LocalElection)
		e := New(cfg, dialer, metrics.NoOp(), log.NewNoOpLogger())
		e.Start(ctx)
		engines = append(engines, e)
	}
	defer stopEngines(engines)

	// Connect every pair through Engine.Connect, not network.Connect, so
	// the composition under test is exercised for topology bookkeeping
	// too.
	for i, ei := range engines {
		for j, mj := range members {
			if i == j {
				continue
			}
			require.NoError(ei.Connect(ctx, mj, ""))
		}
	}

	// No test code calls OnQuorumState: Engine's forwardTopologyEvents
	// loop must derive QuorumEstablished from the topology events
	// produced by the Connect calls above and push it into RabiaCore on
	// its own.
	require.Eventually(func() bool {
		h, err := engines[0].HealthCheck(ctx)
		return err == nil && h.QuorumState == rabia.QuorumEstablished
	}, 2*time.Second, 5*time.Millisecond, "expected Engine to establish quorum from topology events alone")

	require.NoError(engines[0].SubmitCommand(ctx, []byte("wired")))

	for _, e := range engines {
		got := awaitEngineCommit(t, e, 3*time.Second)
		require.Equal(rabia.Slot(0), got.Slot)
		require.NotNil(got.Batch)
		require.Equal([][]byte{[]byte("wired")}, got.Batch.Commands)
	}
}

// Scenario: CONSENSUS-mode leader election end to end. Nothing in the
// test calls leader.Manager.OnLeaderCommitted directly: a LeaderProposal
// submitted by the retry loop must commit through the ordinary consensus
// pipeline and have Engine's commit handler decode it back into a
// LeaderChange.
func TestEngineAppliesCommittedLeaderProposals(t *testing.T) {
	require := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fabric := network.NewFabric()
	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()
	c := ids.GenerateTestNodeID()
	members := []rabia.NodeID{a, b, c}
	expectedLeader := rabia.MinNodeID(members)

	var engines []*Engine
	for _, id := range members {
		dialer := &network.LoopbackDialer{Fabric: fabric, Self: id}
		cfg := testConfig(members, id, config.ConsensusElection)
		e := New(cfg, dialer, metrics.NoOp(), log.NewNoOpLogger())
		e.Start(ctx)
		engines = append(engines, e)
	}
	defer stopEngines(engines)

	for i, ei := range engines {
		for j, mj := range members {
			if i == j {
				continue
			}
			require.NoError(ei.Connect(ctx, mj, ""))
		}
	}

	var changes []<-chan rabia.LeaderChange
	for _, e := range engines {
		changes = append(changes, e.Changes())
	}

	for _, ch := range changes {
		select {
		case change := <-ch:
			require.NotNil(change.Leader)
			require.Equal(expectedLeader, *change.Leader)
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for the elected leader to propagate through Engine")
		}
	}
}
