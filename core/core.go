// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package core implements RabiaCore: the per-slot randomized
// binary-agreement phase machine (§4.4), its commit sequencer (§4.5),
// batch catch-up (§4.6), and health snapshot. Per-slot state is owned
// entirely by a single actor goroutine (slot.go); the directory mapping
// slots to actors is the only thing guarded by a mutex, matching §5's
// "single-writer by construction" rule.
package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/codec"
	"github.com/luxfi/rabia/config"
	"github.com/luxfi/rabia/metrics"
	"github.com/luxfi/rabia/network"
	"github.com/luxfi/rabia/validators"
)

// ClusterTransport is the narrow slice of *network.ClusterNetwork that
// RabiaCore and its slot actors depend on: broadcast, direct send, and
// the single inbound dispatch channel. Depending on the interface
// rather than the concrete type keeps the phase machine testable
// against a fake transport without a real Fabric.
type ClusterTransport interface {
	Broadcast(ctx context.Context, msg *codec.Message)
	Send(ctx context.Context, node rabia.NodeID, msg *codec.Message)
	Inbox() <-chan network.Envelope
}

// RabiaCore drives one node's participation in the protocol: it accepts
// application commands, proposes batches, dispatches inbound protocol
// messages to per-slot actors, and emits decisions to the application in
// slot order.
type RabiaCore struct {
	self     rabia.NodeID
	cfg      config.Config
	expected validators.Set
	net      ClusterTransport
	log      log.Logger
	mx       *metrics.Metrics

	batches *batchStore
	batcher *batcher
	seq     *sequencer

	dirMu     sync.Mutex
	directory map[rabia.Slot]*slotActor

	nextLocalSlot atomic.Uint64

	quorum           atomic.Bool // true while the last quorum state was QuorumEstablished
	highestCommitted atomic.Uint64
	hasCommitted     atomic.Bool

	leaderMu sync.Mutex
	leader   *rabia.NodeID

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a RabiaCore bound to net for transport. Start must be
// called before SubmitCommand/SubmitLeaderProposal are used.
func New(self rabia.NodeID, cfg config.Config, expected validators.Set, net ClusterTransport, mx *metrics.Metrics, logger log.Logger) *RabiaCore {
	c := &RabiaCore{
		self:      self,
		cfg:       cfg,
		expected:  expected,
		net:       net,
		log:       logger,
		mx:        mx,
		batches:   newBatchStore(),
		directory: make(map[rabia.Slot]*slotActor),
		seq:       newSequencer(cfg.MaxOutstandingItems),
	}
	c.batcher = newBatcher(c)
	return c
}

// Committed is the ordered, single-consumer stream of decided slots.
func (c *RabiaCore) Committed() <-chan rabia.Committed {
	return c.seq.committed()
}

// Start begins the inbound dispatch loop, the proposal batcher, and the
// commit sequencer.
func (c *RabiaCore) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.rootCtx = ctx
	c.cancel = cancel

	c.wg.Add(3)
	go func() { defer c.wg.Done(); c.dispatchLoop(ctx) }()
	go func() { defer c.wg.Done(); c.batcher.run(ctx) }()
	go func() { defer c.wg.Done(); c.seq.run(ctx) }()
}

// Stop cancels every per-slot actor, the dispatcher, batcher, and
// sequencer, and waits for them to exit.
func (c *RabiaCore) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// SubmitCommand enqueues an application command for batching. It blocks
// only until ctx is cancelled or the batcher has room.
func (c *RabiaCore) SubmitCommand(ctx context.Context, cmd []byte) error {
	select {
	case c.batcher.submit <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnQuorumState updates whether RabiaCore is permitted to originate new
// proposals. Inbound messages continue to be recorded regardless (§7's
// "RabiaCore pauses proposals but continues to record inbound messages").
func (c *RabiaCore) OnQuorumState(state rabia.QuorumState) {
	c.quorum.Store(state == rabia.QuorumEstablished)
}

// OnLeaderChange lets the health snapshot report the last-known leader;
// RabiaCore itself has no leader-dependent behavior beyond this and
// SubmitLeaderProposal.
func (c *RabiaCore) OnLeaderChange(change rabia.LeaderChange) {
	c.leaderMu.Lock()
	c.leader = change.Leader
	c.leaderMu.Unlock()
}

func (c *RabiaCore) quorumState() rabia.QuorumState {
	if c.quorum.Load() {
		return rabia.QuorumEstablished
	}
	return rabia.QuorumDisappeared
}

func (c *RabiaCore) currentLeader() (rabia.NodeID, bool) {
	c.leaderMu.Lock()
	defer c.leaderMu.Unlock()
	if c.leader == nil {
		return rabia.NodeID{}, false
	}
	return *c.leader, true
}

// SubmitLeaderProposal implements leader.ProposalSubmitter: it carries a
// LeaderProposal command inside a normal consensus proposal rather than
// as a distinct wire type, per §4.3/§6.
func (c *RabiaCore) SubmitLeaderProposal(ctx context.Context, candidate rabia.NodeID, view uint64) error {
	msg := &codec.Message{LeaderProposal: &codec.LeaderProposalMsg{From: c.self, View: view, Proposed: candidate}}
	cmd, err := codec.Codec.Marshal(msg)
	if err != nil {
		return err
	}
	return c.SubmitCommand(ctx, cmd)
}

// proposeBatch is called by the batcher once it has cut a batch; it
// assigns the batch a local slot and starts that slot's actor with this
// node's own V1 proposal recorded.
func (c *RabiaCore) proposeBatch(ctx context.Context, commands [][]byte) {
	if !c.quorum.Load() {
		c.log.Debug("core: quorum not established, deferring proposal")
		for _, cmd := range commands {
			select {
			case c.batcher.submit <- cmd:
			default:
				c.log.Warn("core: dropping command, batcher full while quorum is down")
			}
		}
		return
	}

	batch := &rabia.Batch{CorrelationID: newCorrelationID(), Commands: commands}
	c.batches.store(batch)

	slot := rabia.Slot(c.nextLocalSlot.Add(1) - 1)
	c.getOrCreateActorForProposal(slot, batch)

	c.net.Broadcast(ctx, &codec.Message{Proposal: &codec.ProposalMsg{
		From: c.self, Slot: slot, CorrelationID: batch.CorrelationID,
	}})
}

func (c *RabiaCore) getOrCreateActor(slot rabia.Slot) *slotActor {
	c.dirMu.Lock()
	if a, ok := c.directory[slot]; ok {
		c.dirMu.Unlock()
		return a
	}
	a := newSlotActor(c, slot)
	c.directory[slot] = a
	c.dirMu.Unlock()
	c.spawnActor(a)
	return a
}

// getOrCreateActorForProposal is proposeBatch's entry point: it must set
// the actor's own-proposal state before the actor's goroutine starts, so
// the first round-1 vote it casts reflects it. When two nodes propose for
// the same slot index concurrently (§4.4), the other node's inbound
// Proposal message can win actor creation first — in that case the own
// proposal is delivered through the mailbox instead of written directly,
// since the actor's fields are single-writer owned once its goroutine is
// running.
func (c *RabiaCore) getOrCreateActorForProposal(slot rabia.Slot, batch *rabia.Batch) *slotActor {
	c.dirMu.Lock()
	if a, ok := c.directory[slot]; ok {
		c.dirMu.Unlock()
		a.send(c.rootCtx, msgOwnProposal{batch: batch})
		return a
	}
	a := newSlotActor(c, slot)
	a.setOwnProposal(batch)
	c.directory[slot] = a
	c.dirMu.Unlock()
	c.spawnActor(a)
	return a
}

func (c *RabiaCore) spawnActor(a *slotActor) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		a.run(c.rootCtx)
	}()
}

func (c *RabiaCore) onSlotDecided(slot rabia.Slot, value rabia.StateValue, batch *rabia.Batch) {
	var out *rabia.Batch
	if value == rabia.V1 {
		out = batch
	}
	c.hasCommitted.Store(true)
	for {
		cur := c.highestCommitted.Load()
		if uint64(slot) <= cur {
			break
		}
		if c.highestCommitted.CompareAndSwap(cur, uint64(slot)) {
			break
		}
	}
	c.seq.submit(rabia.Committed{Slot: slot, Batch: out})
}

func (c *RabiaCore) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.net.Inbox():
			if !ok {
				return
			}
			c.dispatch(ctx, env)
		}
	}
}

func (c *RabiaCore) dispatch(ctx context.Context, env network.Envelope) {
	msg := env.Msg
	switch {
	case msg.Proposal != nil:
		p := msg.Proposal
		a := c.getOrCreateActor(p.Slot)
		a.send(ctx, msgProposal{from: env.From, correlationID: p.CorrelationID})
	case msg.Round1Vote != nil:
		v := msg.Round1Vote
		a := c.getOrCreateActor(v.Slot)
		a.send(ctx, msgVote{from: v.From, round: roundOne, phase: v.Phase, value: v.Value})
	case msg.Round2Vote != nil:
		v := msg.Round2Vote
		a := c.getOrCreateActor(v.Slot)
		a.send(ctx, msgVote{from: v.From, round: roundTwo, phase: v.Phase, value: v.Value})
	case msg.Decision != nil:
		d := msg.Decision
		a := c.getOrCreateActor(d.Slot)
		a.send(ctx, msgDecision{from: d.From, value: d.Value, correlationID: d.CorrelationID})
	case msg.BatchFetchRequest != nil:
		c.handleBatchFetchRequest(ctx, env.From, msg.BatchFetchRequest)
	case msg.BatchFetchResp != nil:
		c.handleBatchFetchResponse(ctx, msg.BatchFetchResp)
	default:
		c.mx.StaleMessages.Inc()
	}
}
