// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics defines the Prometheus collectors every Rabia component
// reports through: protocol health counters, per-slot progress, and the
// quorum/leader state gauges an operator dashboards against.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/rabia/utils/wrappers"
)

// Metrics bundles the collectors shared by network, topology, leader, and
// core. Callers construct one instance per node and pass it down to each
// component's constructor.
type Metrics struct {
	// ProtocolViolations counts locally-detected violations of the
	// single-vote-per-(node,phase,round) invariant.
	ProtocolViolations prometheus.Counter
	// StaleMessages counts messages discarded because they referenced a
	// slot or view already superseded locally.
	StaleMessages prometheus.Counter
	// CoinFlips counts phases that fell through to the deterministic coin
	// because round-2 produced no majority value.
	CoinFlips prometheus.Counter
	// PhasesAdvanced counts every phase transition across all slots.
	PhasesAdvanced prometheus.Counter
	// SlotsCommitted counts slots this node's own phase machine decided,
	// counted at decision time rather than at in-order delivery; a slot
	// decided by adopting a peer's Decision message is not counted.
	SlotsCommitted prometheus.Counter
	// QuorumState is 1 while topology.Manager reports
	// rabia.QuorumEstablished, 0 while rabia.QuorumDisappeared.
	QuorumState prometheus.Gauge
	// LeaderChanges counts LeaderChange events published, including
	// flap-recovery re-affirmations.
	LeaderChanges prometheus.Counter
	// CatchupRequests counts outgoing BatchFetchRequest messages.
	CatchupRequests prometheus.Counter
	// PhaseDuration is a histogram, in seconds, for the wall-clock time from
	// a phase starting to it advancing. It is registered, but no component
	// in this module records observations into it.
	PhaseDuration prometheus.Histogram
}

// New constructs a Metrics and registers every collector with reg. It
// aggregates registration errors with wrappers.Errs so a caller can report
// every failure instead of only the first, mirroring how the rest of this
// module surfaces multi-field construction failures.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ProtocolViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rabia",
			Name:      "protocol_violations_total",
			Help:      "Locally-detected protocol invariant violations, dropped and counted rather than panicked on.",
		}),
		StaleMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rabia",
			Name:      "stale_messages_total",
			Help:      "Messages discarded for referencing an already-superseded slot or view.",
		}),
		CoinFlips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rabia",
			Name:      "coin_flips_total",
			Help:      "Phases resolved via the deterministic coin because round-2 had no majority value.",
		}),
		PhasesAdvanced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rabia",
			Name:      "phases_advanced_total",
			Help:      "Phase transitions across all slots.",
		}),
		SlotsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rabia",
			Name:      "slots_committed_total",
			Help:      "Slots decided by this node's own phase machine.",
		}),
		QuorumState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rabia",
			Name:      "quorum_established",
			Help:      "1 while a quorum of the expected cluster is reachable, 0 otherwise.",
		}),
		LeaderChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rabia",
			Name:      "leader_changes_total",
			Help:      "LeaderChange events published, including flap-recovery re-affirmations.",
		}),
		CatchupRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rabia",
			Name:      "catchup_requests_total",
			Help:      "BatchFetchRequest messages sent to recover an unknown batch.",
		}),
		PhaseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rabia",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock time from a phase starting to it advancing.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	var errs wrappers.Errs
	collectors := []prometheus.Collector{
		m.ProtocolViolations,
		m.StaleMessages,
		m.CoinFlips,
		m.PhasesAdvanced,
		m.SlotsCommitted,
		m.QuorumState,
		m.LeaderChanges,
		m.CatchupRequests,
		m.PhaseDuration,
	}
	for _, c := range collectors {
		errs.Add(reg.Register(c))
	}
	if errs.Errored() {
		return nil, errs.Err()
	}
	return m, nil
}

// NoOp returns a Metrics whose collectors are registered only with a
// fresh private registry that nothing gathers from, for tests and
// embedders that don't want a Prometheus registry wired up.
func NoOp() *Metrics {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		// NewRegistry is always empty; registration cannot fail here.
		panic(err)
	}
	return m
}
