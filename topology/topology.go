// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package topology maintains the current view of reachable peers,
// computes quorum state against the expected cluster, and serializes
// change notifications to a single subscriber channel — generalizing the
// donor's validators.SetCallbackListener single-writer contract from
// weighted stake deltas to plain reachability deltas.
package topology

import (
	"sync"

	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/leader"
	"github.com/luxfi/rabia/metrics"
	"github.com/luxfi/rabia/validators"
)

// nodeSet is the minimal map-backed set Manager needs: Add/Remove/Contains/
// List over rabia.NodeID. Folded in directly rather than taken from a
// general-purpose set package, since Manager is the only thing in this
// module that ever needed that subset.
type nodeSet map[rabia.NodeID]struct{}

func (s nodeSet) Add(id rabia.NodeID) {
	s[id] = struct{}{}
}

func (s nodeSet) Remove(id rabia.NodeID) {
	delete(s, id)
}

func (s nodeSet) Contains(id rabia.NodeID) bool {
	_, ok := s[id]
	return ok
}

func (s nodeSet) List() []rabia.NodeID {
	out := make([]rabia.NodeID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// Manager tracks live topology against the expected cluster and emits
// rabia.TopologyEvent notifications, in order, to one subscriber channel.
// Its initial quorum state is DISAPPEARED, matching rabia.QuorumState's
// zero value.
type Manager struct {
	expected validators.Set
	log      log.Logger
	mx       *metrics.Metrics

	mu    sync.Mutex
	live  nodeSet
	state rabia.QuorumState

	events         chan rabia.TopologyEvent
	leaderChangeCh chan<- rabia.LeaderChange
}

// New constructs a Manager over expected, the fixed expected-cluster
// membership. leaderChangeSink may be nil; when non-nil, it receives the
// synthesized LeaderChange{nil} notification on total topology loss (see
// NewSink for the common wiring with leader.Manager).
func New(expected validators.Set, mx *metrics.Metrics, logger log.Logger, leaderChangeSink chan<- rabia.LeaderChange) *Manager {
	return &Manager{
		expected:       expected,
		log:            logger,
		mx:             mx,
		live:           make(nodeSet),
		state:          rabia.QuorumDisappeared,
		events:         make(chan rabia.TopologyEvent, 64),
		leaderChangeCh: leaderChangeSink,
	}
}

// NewSink returns a channel that forwards TopologyManager's synthesized
// total-topology-loss LeaderChange directly into m — the common wiring for
// a node that runs both a Manager and a leader.Manager in CONSENSUS or
// LOCAL mode. Pass the result as New's leaderChangeSink argument; close it
// once the owning Manager is done emitting to stop the forwarding
// goroutine.
func NewSink(m *leader.Manager) chan<- rabia.LeaderChange {
	ch := make(chan rabia.LeaderChange, 1)
	go func() {
		for range ch {
			m.OnTopologyLost()
		}
	}()
	return ch
}

// Events is the single serialized stream of topology notifications.
func (m *Manager) Events() <-chan rabia.TopologyEvent {
	return m.events
}

// CurrentState returns the quorum state as of the last processed
// topology change, for the health/metrics surface; callers needing the
// notification itself should consume Events.
func (m *Manager) CurrentState() rabia.QuorumState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LiveTopology returns the current live peer set, including self if
// OnNodeAdded(self) was called (engine.Engine.Start does so).
func (m *Manager) LiveTopology() []rabia.NodeID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.live.List()
}

// OnNodeAdded records node as reachable and emits NodeAdded followed by
// any resulting QuorumStateNotification.
func (m *Manager) OnNodeAdded(node rabia.NodeID) {
	m.mu.Lock()
	if m.live.Contains(node) {
		m.mu.Unlock()
		return
	}
	m.live.Add(node)
	topology := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(rabia.NodeAdded{NodeID: node, NewTopology: topology})
	m.recomputeQuorum(topology)
}

// OnNodeRemoved records node as administratively disconnected and emits
// NodeRemoved followed by any resulting QuorumStateNotification.
func (m *Manager) OnNodeRemoved(node rabia.NodeID) {
	m.mu.Lock()
	if !m.live.Contains(node) {
		m.mu.Unlock()
		return
	}
	m.live.Remove(node)
	topology := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(rabia.NodeRemoved{NodeID: node, NewTopology: topology})
	m.recomputeQuorum(topology)
}

// OnNodeDown records node as down per the liveness detector's miss
// threshold and emits NodeDown followed by any resulting
// QuorumStateNotification; on total loss it additionally synthesizes
// LeaderChange{nil}.
func (m *Manager) OnNodeDown(node rabia.NodeID) {
	m.mu.Lock()
	if !m.live.Contains(node) {
		m.mu.Unlock()
		return
	}
	m.live.Remove(node)
	topology := m.snapshotLocked()
	m.mu.Unlock()

	m.emit(rabia.NodeDown{NodeID: node, NewTopology: topology})
	m.recomputeQuorum(topology)
}

func (m *Manager) snapshotLocked() []rabia.NodeID {
	return m.live.List()
}

func (m *Manager) recomputeQuorum(topology []rabia.NodeID) {
	expectedLive := 0
	for _, id := range topology {
		if m.expected.Has(id) {
			expectedLive++
		}
	}

	next := rabia.QuorumDisappeared
	if expectedLive >= m.expected.QuorumSize() {
		next = rabia.QuorumEstablished
	}

	m.mu.Lock()
	changed := next != m.state
	m.state = next
	m.mu.Unlock()

	if changed {
		m.mx.QuorumState.Set(float64(next))
		m.emit(rabia.QuorumStateNotification{State: next})
	}

	if next == rabia.QuorumDisappeared && len(topology) == 0 && m.leaderChangeCh != nil {
		select {
		case m.leaderChangeCh <- rabia.LeaderChange{Leader: nil, IsSelf: false}:
		default:
			m.log.Debug("topology: leader change sink full, dropping synthesized LeaderChange(nil)")
		}
	}
}

func (m *Manager) emit(ev rabia.TopologyEvent) {
	select {
	case m.events <- ev:
	default:
		m.log.Debug("topology: events channel full, dropping notification")
	}
}
