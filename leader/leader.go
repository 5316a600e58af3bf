// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package leader names exactly one node "leader" for the current view,
// either by local deterministic computation (LOCAL mode) or by a
// consensus-carried proposal (CONSENSUS mode), and publishes LeaderChange
// notifications asynchronously to subscribers.
package leader

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/config"
	"github.com/luxfi/rabia/metrics"
	"github.com/luxfi/rabia/validators"
)

// ProposalSubmitter is the narrow surface LeaderManager needs from
// core.RabiaCore in CONSENSUS mode: submit a LeaderProposal command as
// part of a normal consensus proposal.
type ProposalSubmitter interface {
	SubmitLeaderProposal(ctx context.Context, candidate rabia.NodeID, view uint64) error
}

// leaderState is the packed atomic tuple behind Manager.state: every
// field that must change together is swapped with one CompareAndSwap, so
// no observer ever sees a torn (leader, view) pair.
type leaderState struct {
	leader            *rabia.NodeID
	viewSequence      uint64
	inFlight          bool
	needsReactivation bool
}

// Manager implements LeaderManager for either config.LocalElection or
// config.ConsensusElection.
type Manager struct {
	self   rabia.NodeID
	mode   config.LeaderElectionMode
	expected validators.Set
	submit ProposalSubmitter
	retryDelay time.Duration
	log    log.Logger
	mx     *metrics.Metrics

	state atomic.Pointer[leaderState]

	changes chan rabia.LeaderChange

	mu            sync.Mutex
	liveTopology  []rabia.NodeID

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager. submit is only used in config.ConsensusElection
// mode and may be nil in config.LocalElection mode.
func New(self rabia.NodeID, mode config.LeaderElectionMode, expected validators.Set, submit ProposalSubmitter, retryDelay time.Duration, mx *metrics.Metrics, logger log.Logger) *Manager {
	m := &Manager{
		self:       self,
		mode:       mode,
		expected:   expected,
		submit:     submit,
		retryDelay: retryDelay,
		log:        logger,
		mx:         mx,
		changes:    make(chan rabia.LeaderChange, 16),
	}
	m.state.Store(&leaderState{})
	return m
}

// Changes is the asynchronous LeaderChange notification stream. Both
// LOCAL and CONSENSUS modes publish here with a non-blocking send onto a
// buffered channel, so the publisher never waits for the subscriber; a
// notification is dropped when the buffer is full.
func (m *Manager) Changes() <-chan rabia.LeaderChange {
	return m.changes
}

// Start begins the CONSENSUS-mode retry loop; a no-op in LOCAL mode since
// LOCAL has nothing to retry.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	if m.mode != config.ConsensusElection {
		return
	}
	m.wg.Add(1)
	go m.retryLoop(ctx)
}

// Stop cancels the retry loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// OnTopologyEvent updates the manager's view of live topology and quorum
// state, recomputing (LOCAL mode) or clearing (on quorum loss, either
// mode) the leader as appropriate.
func (m *Manager) OnTopologyEvent(ev rabia.TopologyEvent) {
	switch e := ev.(type) {
	case rabia.NodeAdded:
		m.setLiveTopology(e.NewTopology)
		m.onTopologyChanged()
	case rabia.NodeRemoved:
		m.setLiveTopology(e.NewTopology)
		m.onTopologyChanged()
	case rabia.NodeDown:
		m.setLiveTopology(e.NewTopology)
		m.onTopologyChanged()
	case rabia.QuorumStateNotification:
		if e.State == rabia.QuorumDisappeared {
			m.onQuorumLost()
		} else {
			m.onQuorumEstablished()
		}
	}
}

func (m *Manager) setLiveTopology(topology []rabia.NodeID) {
	m.mu.Lock()
	m.liveTopology = topology
	m.mu.Unlock()
}

func (m *Manager) candidate() (rabia.NodeID, bool) {
	m.mu.Lock()
	topology := m.liveTopology
	m.mu.Unlock()

	intersection := make([]rabia.NodeID, 0, len(topology))
	for _, id := range topology {
		if m.expected.Has(id) {
			intersection = append(intersection, id)
		}
	}
	pool := intersection
	if len(pool) == 0 {
		pool = topology
	}
	if len(pool) == 0 {
		return rabia.NodeID{}, false
	}
	return rabia.MinNodeID(pool), true
}

func (m *Manager) onTopologyChanged() {
	if m.mode != config.LocalElection {
		return
	}
	candidate, ok := m.candidate()
	if !ok {
		m.setLeader(nil)
		return
	}
	m.setLeader(&candidate)
}

// OnTopologyLost forces the manager into the "no leader" state, as if
// quorum had just been lost. It exists for topology.NewSink's direct
// wiring of TopologyManager's synthesized total-topology-loss signal,
// which fires independently of the QuorumStateNotification path
// OnTopologyEvent already handles (topology.Manager emits both).
func (m *Manager) OnTopologyLost() {
	m.onQuorumLost()
}

func (m *Manager) onQuorumLost() {
	for {
		old := m.state.Load()
		next := &leaderState{leader: nil, viewSequence: old.viewSequence, inFlight: false, needsReactivation: true}
		if m.state.CompareAndSwap(old, next) {
			break
		}
	}
	m.publish(nil)
}

func (m *Manager) onQuorumEstablished() {
	if m.mode != config.LocalElection {
		return
	}
	m.onTopologyChanged()
}

// setLeader updates the current leader under LOCAL mode, publishing
// LeaderChange when the value changes or a flap-recovery reactivation is
// pending.
func (m *Manager) setLeader(candidate *rabia.NodeID) {
	for {
		old := m.state.Load()
		changed := !sameLeader(old.leader, candidate) || old.needsReactivation
		next := &leaderState{leader: candidate, viewSequence: old.viewSequence, inFlight: old.inFlight, needsReactivation: false}
		if !m.state.CompareAndSwap(old, next) {
			continue
		}
		if changed {
			m.publish(candidate)
		}
		return
	}
}

func sameLeader(a, b *rabia.NodeID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *Manager) publish(leader *rabia.NodeID) {
	m.mx.LeaderChanges.Inc()
	change := rabia.LeaderChange{Leader: leader, IsSelf: leader != nil && *leader == m.self}
	select {
	case m.changes <- change:
	default:
		m.log.Debug("leader: changes channel full, dropping notification")
	}
}

// OnLeaderCommitted fires when a LeaderProposal command commits through
// RabiaCore in CONSENSUS mode. A stale commit (committedView below the
// locally observed view) is rejected.
func (m *Manager) OnLeaderCommitted(committedLeader rabia.NodeID, committedView uint64) {
	for {
		old := m.state.Load()
		if committedView < old.viewSequence {
			m.mx.StaleMessages.Inc()
			return
		}
		leader := committedLeader
		changed := !sameLeader(old.leader, &leader) || old.needsReactivation
		next := &leaderState{leader: &leader, viewSequence: committedView, inFlight: false, needsReactivation: false}
		if !m.state.CompareAndSwap(old, next) {
			continue
		}
		if changed {
			m.publish(&leader)
		}
		return
	}
}

func (m *Manager) retryLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.retryDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.maybeSubmit(ctx)
		}
	}
}

func (m *Manager) maybeSubmit(ctx context.Context) {
	old := m.state.Load()
	if old.leader != nil || old.inFlight {
		return
	}
	candidate, ok := m.candidate()
	if !ok || candidate != m.self {
		return
	}

	next := &leaderState{leader: old.leader, viewSequence: old.viewSequence, inFlight: true, needsReactivation: old.needsReactivation}
	if !m.state.CompareAndSwap(old, next) {
		return
	}

	view := old.viewSequence + 1
	if err := m.submit.SubmitLeaderProposal(ctx, candidate, view); err != nil {
		m.log.Debug("leader: proposal submission failed, will retry", log.Err(err))
		for {
			cur := m.state.Load()
			cleared := &leaderState{leader: cur.leader, viewSequence: cur.viewSequence, inFlight: false, needsReactivation: cur.needsReactivation}
			if m.state.CompareAndSwap(cur, cleared) {
				return
			}
		}
	}
}
