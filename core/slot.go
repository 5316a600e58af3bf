// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"context"
	"time"

	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/codec"
	"github.com/luxfi/rabia/quorum"
)

// round distinguishes which half of a phase a slotActor is in.
type round uint8

const (
	roundOne round = iota
	roundTwo
)

// actorMsg is the sealed union of events delivered to a slotActor's
// mailbox. Every variant is handled on the actor's own goroutine, so no
// locking is needed around the fields in slotActor below.
type actorMsg interface{ isActorMsg() }

type msgProposal struct {
	from          rabia.NodeID
	correlationID rabia.CorrelationID
}

func (msgProposal) isActorMsg() {}

type msgVote struct {
	from  rabia.NodeID
	round round
	phase rabia.Phase
	value rabia.StateValue
}

func (msgVote) isActorMsg() {}

type msgDecision struct {
	from          rabia.NodeID
	value         rabia.StateValue
	correlationID *rabia.CorrelationID
}

func (msgDecision) isActorMsg() {}

type msgBatchResolved struct {
	correlationID rabia.CorrelationID
	batch         *rabia.Batch
}

func (msgBatchResolved) isActorMsg() {}

// msgOwnProposal tells an already-running actor that this node has also
// cut a batch for its slot — the common case when two nodes propose for
// the same slot index concurrently (§4.4's "dissenting proposals" case).
// It never changes an initial vote already cast; it only lets decideValue
// later find this node's own batch via haveOwnProposal/ownCorrelation.
type msgOwnProposal struct {
	batch *rabia.Batch
}

func (msgOwnProposal) isActorMsg() {}

// slotActor owns every read and write of one slot's protocol state. It
// runs on a single goroutine (per §5's "single logical serialization
// domain" rule), communicating only via its buffered mailbox channel and
// the core's Broadcast/commit/batch-store side effects.
type slotActor struct {
	core *RabiaCore
	slot rabia.Slot

	mailbox chan actorMsg
	done    chan struct{}

	currentPhase rabia.Phase
	currentRound round

	round1 map[rabia.Phase]*quorum.Detector
	round2 map[rabia.Phase]*quorum.Detector
	resolved1 map[rabia.Phase]bool
	resolved2 map[rabia.Phase]bool

	lastRound1Vote map[rabia.Phase]rabia.StateValue
	lastRound2Vote map[rabia.Phase]rabia.StateValue

	proposals map[rabia.NodeID]rabia.CorrelationID

	haveOwnProposal bool
	ownCorrelation  rabia.CorrelationID

	decided       bool
	decisionValue rabia.StateValue
	decisionBatch *rabia.Batch
	awaitingBatch bool
	pendingFetch  rabia.CorrelationID
}

func newSlotActor(c *RabiaCore, slot rabia.Slot) *slotActor {
	return &slotActor{
		core:           c,
		slot:           slot,
		mailbox:        make(chan actorMsg, 256),
		done:           make(chan struct{}),
		round1:         make(map[rabia.Phase]*quorum.Detector),
		round2:         make(map[rabia.Phase]*quorum.Detector),
		resolved1:      make(map[rabia.Phase]bool),
		resolved2:      make(map[rabia.Phase]bool),
		lastRound1Vote: make(map[rabia.Phase]rabia.StateValue),
		lastRound2Vote: make(map[rabia.Phase]rabia.StateValue),
		proposals:      make(map[rabia.NodeID]rabia.CorrelationID),
	}
}

// send delivers m to the actor's mailbox, blocking only until ctx is
// cancelled — callers never busy-wait and the actor never silently drops
// a protocol message because its mailbox happened to be momentarily full.
func (a *slotActor) send(ctx context.Context, m actorMsg) {
	select {
	case a.mailbox <- m:
	case <-ctx.Done():
	}
}

func (a *slotActor) setOwnProposal(batch *rabia.Batch) {
	a.haveOwnProposal = true
	a.ownCorrelation = batch.CorrelationID
	a.proposals[a.core.self] = batch.CorrelationID
}

func (a *slotActor) run(ctx context.Context) {
	defer close(a.done)

	initial := rabia.V0
	if a.haveOwnProposal {
		initial = rabia.V1
	}
	a.startPhase(ctx, 0, initial)

	timer := time.NewTimer(a.core.cfg.PhaseTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case m := <-a.mailbox:
			a.handle(ctx, m)
			if a.decided && !a.awaitingBatch {
				a.finish(ctx)
				return
			}
			resetTimer(timer, a.core.cfg.PhaseTimeout)
		case <-timer.C:
			a.onTimeout(ctx)
			timer.Reset(a.core.cfg.PhaseTimeout)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func (a *slotActor) handle(ctx context.Context, m actorMsg) {
	switch msg := m.(type) {
	case msgProposal:
		if _, ok := a.proposals[msg.from]; !ok {
			a.proposals[msg.from] = msg.correlationID
		}
		a.core.batches.rememberSource(msg.correlationID, msg.from)
	case msgVote:
		a.handleVote(ctx, msg)
	case msgDecision:
		a.handleDecisionMsg(ctx, msg)
	case msgBatchResolved:
		if a.awaitingBatch && msg.correlationID == a.pendingFetch {
			a.decisionBatch = msg.batch
			a.awaitingBatch = false
		}
	case msgOwnProposal:
		if !a.haveOwnProposal {
			a.setOwnProposal(msg.batch)
		}
	}
}

func (a *slotActor) handleVote(ctx context.Context, m msgVote) {
	if a.decided || m.phase < a.currentPhase {
		a.core.mx.StaleMessages.Inc()
		return
	}

	det := a.detectorFor(m.round, m.phase)
	if prev, ok := det.VoteOf(m.from); ok && prev != m.value {
		a.core.mx.ProtocolViolations.Inc()
		a.core.log.Warn("core: conflicting vote discarded", log.Stringer("peer", m.from))
		return
	}
	det.Add(m.from, m.value)

	switch m.round {
	case roundOne:
		a.maybeAdvanceRound1(ctx, m.phase)
	case roundTwo:
		a.maybeDecide(ctx, m.phase)
	}
}

func (a *slotActor) handleDecisionMsg(ctx context.Context, m msgDecision) {
	if a.decided {
		return
	}
	if m.value == rabia.V0 {
		a.decisionValue = rabia.V0
		a.decided = true
		return
	}
	a.decisionValue = rabia.V1
	a.decided = true
	if m.correlationID != nil {
		if batch, ok := a.core.batches.get(*m.correlationID); ok {
			a.decisionBatch = batch
			return
		}
		a.awaitBatch(ctx, *m.correlationID, m.from)
		return
	}
	a.awaitingBatch = true
}

func (a *slotActor) detectorFor(r round, phase rabia.Phase) *quorum.Detector {
	quorumSize := a.core.expected.QuorumSize()
	if r == roundOne {
		d, ok := a.round1[phase]
		if !ok {
			d = quorum.NewDetector(quorumSize)
			a.round1[phase] = d
		}
		return d
	}
	d, ok := a.round2[phase]
	if !ok {
		d = quorum.NewDetector(quorumSize)
		a.round2[phase] = d
	}
	return d
}

func (a *slotActor) startPhase(ctx context.Context, phase rabia.Phase, vote rabia.StateValue) {
	a.currentPhase = phase
	a.currentRound = roundOne
	a.castRound1(ctx, phase, vote)
	a.maybeAdvanceRound1(ctx, phase)
}

func (a *slotActor) castRound1(ctx context.Context, phase rabia.Phase, vote rabia.StateValue) {
	a.lastRound1Vote[phase] = vote
	a.detectorFor(roundOne, phase).Add(a.core.self, vote)
	a.core.net.Broadcast(ctx, &codec.Message{Round1Vote: &codec.VoteMsg{
		From: a.core.self, Slot: a.slot, Phase: phase, Value: vote,
	}})
}

func (a *slotActor) maybeAdvanceRound1(ctx context.Context, phase rabia.Phase) {
	if a.currentPhase != phase || a.currentRound != roundOne || a.resolved1[phase] {
		return
	}
	det := a.round1[phase]
	quorumSize := a.core.expected.QuorumSize()
	if det.Voted() < quorumSize {
		return
	}
	a.resolved1[phase] = true

	strictMajority := quorumSize/2 + 1
	var vote rabia.StateValue
	switch {
	case det.Count(rabia.V1) >= strictMajority:
		vote = rabia.V1
	case det.Count(rabia.V0) >= strictMajority:
		vote = rabia.V0
	default:
		vote = rabia.VQuestion
	}
	a.castRound2(ctx, phase, vote)
}

func (a *slotActor) castRound2(ctx context.Context, phase rabia.Phase, vote rabia.StateValue) {
	a.currentRound = roundTwo
	a.lastRound2Vote[phase] = vote
	a.detectorFor(roundTwo, phase).Add(a.core.self, vote)
	a.core.net.Broadcast(ctx, &codec.Message{Round2Vote: &codec.VoteMsg{
		From: a.core.self, Slot: a.slot, Phase: phase, Value: vote,
	}})
	a.maybeDecide(ctx, phase)
}

func (a *slotActor) maybeDecide(ctx context.Context, phase rabia.Phase) {
	if a.currentPhase != phase || a.currentRound != roundTwo || a.resolved2[phase] || a.decided {
		return
	}
	det := a.round2[phase]
	quorumSize := a.core.expected.QuorumSize()
	if det.Voted() < quorumSize {
		return
	}
	a.resolved2[phase] = true

	hasV1 := det.Count(rabia.V1) > 0
	hasV0 := det.Count(rabia.V0) > 0

	switch {
	case hasV1 && !hasV0:
		a.decideValue(ctx, phase, rabia.V1, det)
	case hasV0 && !hasV1:
		a.decideValue(ctx, phase, rabia.V0, det)
	default:
		a.core.mx.CoinFlips.Inc()
		coin := flipCoin(a.slot, phase)
		a.core.mx.PhasesAdvanced.Inc()
		a.startPhase(ctx, phase.Next(), coin)
	}
}

func (a *slotActor) decideValue(ctx context.Context, phase rabia.Phase, value rabia.StateValue, det *quorum.Detector) {
	a.decided = true
	a.decisionValue = value
	a.core.mx.PhasesAdvanced.Inc()
	a.core.mx.SlotsCommitted.Inc()

	a.broadcastDecision(ctx, value)

	if value == rabia.V0 {
		return
	}

	if a.haveOwnProposal {
		if batch, ok := a.core.batches.get(a.ownCorrelation); ok {
			a.decisionBatch = batch
			return
		}
	}

	for _, voter := range det.VotersFor(rabia.V1) {
		if cid, ok := a.proposals[voter]; ok {
			if batch, ok := a.core.batches.get(cid); ok {
				a.decisionBatch = batch
				return
			}
			a.awaitBatch(ctx, cid, voter)
			return
		}
	}
	a.awaitingBatch = true
}

func (a *slotActor) broadcastDecision(ctx context.Context, value rabia.StateValue) {
	var cid *rabia.CorrelationID
	if value == rabia.V1 {
		if a.haveOwnProposal {
			c := a.ownCorrelation
			cid = &c
		}
	}
	a.core.net.Broadcast(ctx, &codec.Message{Decision: &codec.DecisionMsg{
		From: a.core.self, Slot: a.slot, Value: value, CorrelationID: cid,
	}})
}

func (a *slotActor) awaitBatch(ctx context.Context, cid rabia.CorrelationID, from rabia.NodeID) {
	a.awaitingBatch = true
	a.pendingFetch = cid
	a.core.requestBatch(ctx, from, cid, a.slot)
}

func (a *slotActor) onTimeout(ctx context.Context) {
	if a.decided {
		return
	}
	switch a.currentRound {
	case roundOne:
		a.core.net.Broadcast(ctx, &codec.Message{Round1Vote: &codec.VoteMsg{
			From: a.core.self, Slot: a.slot, Phase: a.currentPhase, Value: a.lastRound1Vote[a.currentPhase],
		}})
	case roundTwo:
		a.core.net.Broadcast(ctx, &codec.Message{Round2Vote: &codec.VoteMsg{
			From: a.core.self, Slot: a.slot, Phase: a.currentPhase, Value: a.lastRound2Vote[a.currentPhase],
		}})
	}
}

func (a *slotActor) finish(ctx context.Context) {
	a.core.onSlotDecided(a.slot, a.decisionValue, a.decisionBatch)
}
