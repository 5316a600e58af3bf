// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package engine is the composition root that wires network.ClusterNetwork,
// topology.Manager, leader.Manager, and core.RabiaCore into one running
// node. Each of those four packages is usable on its own, but nothing in
// them calls across to a sibling — that wiring is this package's entire
// job: ping/pong misses become NodeDown, NodeDown recomputes quorum and
// topology, topology changes drive leader election and gate RabiaCore's
// proposals, leader changes reach RabiaCore, and committed LeaderProposal
// commands reach back into leader.Manager's CONSENSUS-mode commit handler.
package engine

import (
	"context"
	"sync"

	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/codec"
	"github.com/luxfi/rabia/config"
	"github.com/luxfi/rabia/core"
	"github.com/luxfi/rabia/leader"
	"github.com/luxfi/rabia/metrics"
	"github.com/luxfi/rabia/network"
	"github.com/luxfi/rabia/topology"
	"github.com/luxfi/rabia/validators"
)

// Engine is one node's fully wired Rabia participant.
type Engine struct {
	self rabia.NodeID

	net       *network.ClusterNetwork
	topo      *topology.Manager
	ldr       *leader.Manager
	consensus *core.RabiaCore

	leaderLossSink chan<- rabia.LeaderChange

	committed chan rabia.Committed
	changes   chan rabia.LeaderChange

	log log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a complete Engine from cfg. dialer resolves the addresses
// later passed to Connect.
func New(cfg config.Config, dialer network.Dialer, mx *metrics.Metrics, logger log.Logger) *Engine {
	expected := validators.NewSet(cfg.ExpectedCluster)

	net := network.New(cfg.SelfNodeID, dialer, mx, logger,
		cfg.PingInterval, cfg.PingTimeout, cfg.MissThreshold,
		cfg.BenchlistMissThreshold, cfg.BenchlistMaxDuration)

	consensus := core.New(cfg.SelfNodeID, cfg, expected, net, mx, logger)

	ldr := leader.New(cfg.SelfNodeID, cfg.LeaderElectionMode, expected, consensus, cfg.ProposalRetryDelay, mx, logger)

	sink := topology.NewSink(ldr)
	topo := topology.New(expected, mx, logger, sink)

	return &Engine{
		self:           cfg.SelfNodeID,
		net:            net,
		topo:           topo,
		ldr:            ldr,
		consensus:      consensus,
		leaderLossSink: sink,
		committed:      make(chan rabia.Committed, cfg.MaxOutstandingItems),
		changes:        make(chan rabia.LeaderChange, 16),
		log:            logger,
	}
}

// Network, Topology, Leader, and Core expose the underlying components for
// introspection (metrics, health, direct testing) without requiring every
// caller to route through Engine.
func (e *Engine) Network() *network.ClusterNetwork { return e.net }
func (e *Engine) Topology() *topology.Manager       { return e.topo }
func (e *Engine) Leader() *leader.Manager           { return e.ldr }
func (e *Engine) Core() *core.RabiaCore             { return e.consensus }

// Committed is the ordered, single-consumer stream of decided slots,
// forwarded from core.RabiaCore after Engine has inspected each batch for
// a committed LeaderProposal.
func (e *Engine) Committed() <-chan rabia.Committed {
	return e.committed
}

// Changes is the LeaderChange notification stream, forwarded from
// leader.Manager after Engine has applied it to core.RabiaCore.
func (e *Engine) Changes() <-chan rabia.LeaderChange {
	return e.changes
}

// SubmitCommand enqueues an application command for batching and proposal.
func (e *Engine) SubmitCommand(ctx context.Context, cmd []byte) error {
	return e.consensus.SubmitCommand(ctx, cmd)
}

// HealthCheck reports the current status snapshot (see core.Health).
func (e *Engine) HealthCheck(ctx context.Context) (core.Health, error) {
	return e.consensus.HealthCheck(ctx)
}

// Connect dials node and, once connected, records it as reachable with
// Topology — the pairing the donor's admin-reconfiguration surface always
// performs together.
func (e *Engine) Connect(ctx context.Context, node rabia.NodeID, addr string) error {
	if err := e.net.Connect(ctx, node, addr); err != nil {
		return err
	}
	e.topo.OnNodeAdded(node)
	return nil
}

// Disconnect tears down node's connection and records it as no longer
// reachable with Topology.
func (e *Engine) Disconnect(node rabia.NodeID) {
	e.net.Disconnect(node)
	e.topo.OnNodeRemoved(node)
}

// Start begins every owned component plus the four forwarding loops that
// compose them.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	e.net.Start(ctx)
	e.ldr.Start(ctx)
	e.consensus.Start(ctx)

	e.wg.Add(4)
	go func() { defer e.wg.Done(); e.forwardNodeDown(ctx) }()
	go func() { defer e.wg.Done(); e.forwardTopologyEvents(ctx) }()
	go func() { defer e.wg.Done(); e.forwardLeaderChanges(ctx) }()
	go func() { defer e.wg.Done(); e.forwardCommits(ctx) }()

	// A node is always reachable to itself; without this, every node's
	// own candidate() pool would be missing exactly the one entry (its
	// own ID) the others' pools include, so LOCAL-mode election could
	// never converge on self as its own elected leader.
	e.topo.OnNodeAdded(e.self)
}

// Stop cancels the forwarding loops and every owned component, in that
// order, then waits for all of it to exit.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.consensus.Stop()
	e.ldr.Stop()
	e.net.Stop()
	e.wg.Wait()
	close(e.leaderLossSink)
}

// forwardNodeDown turns ClusterNetwork's liveness verdict into a Topology
// update (§2's "ping/pong miss -> NodeDown -> TopologyManager recomputes
// quorum").
func (e *Engine) forwardNodeDown(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case node, ok := <-e.net.NodeDown():
			if !ok {
				return
			}
			e.topo.OnNodeDown(node)
		}
	}
}

// forwardTopologyEvents fans Topology's serialized event stream out to
// both of its subscribers: LeaderManager always, and RabiaCore's quorum
// gate whenever the event is a QuorumStateNotification.
func (e *Engine) forwardTopologyEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-e.topo.Events():
			if !ok {
				return
			}
			e.ldr.OnTopologyEvent(ev)
			if q, ok := ev.(rabia.QuorumStateNotification); ok {
				e.consensus.OnQuorumState(q.State)
			}
		}
	}
}

// forwardLeaderChanges applies every LeaderChange to RabiaCore (so its
// health snapshot and SubmitLeaderProposal path stay current) before
// re-publishing it to Engine's own subscribers.
func (e *Engine) forwardLeaderChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-e.ldr.Changes():
			if !ok {
				return
			}
			e.consensus.OnLeaderChange(change)
			select {
			case e.changes <- change:
			case <-ctx.Done():
				return
			}
		}
	}
}

// forwardCommits inspects every committed batch for a LeaderProposal
// command before re-publishing the commit to Engine's own subscribers —
// the missing half of CONSENSUS-mode election: core.SubmitLeaderProposal
// gets a LeaderProposal command into the commit stream, and this is the
// commit handler that decodes it back out and calls OnLeaderCommitted.
func (e *Engine) forwardCommits(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-e.consensus.Committed():
			if !ok {
				return
			}
			e.applyLeaderProposals(c)
			select {
			case e.committed <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (e *Engine) applyLeaderProposals(c rabia.Committed) {
	if c.Batch == nil {
		return
	}
	for _, cmd := range c.Batch.Commands {
		var msg codec.Message
		if err := codec.Codec.Unmarshal(cmd, &msg); err != nil {
			continue
		}
		if msg.LeaderProposal == nil {
			continue
		}
		e.ldr.OnLeaderCommitted(msg.LeaderProposal.Proposed, msg.LeaderProposal.View)
	}
}
