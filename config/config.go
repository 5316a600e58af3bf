// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the tunables for a Rabia node: expected cluster
// membership, phase/liveness timing, batching thresholds, and leader
// election mode. Config is constructed by the embedding application and
// validated once at startup via Validate.
package config

import (
	"time"

	"github.com/luxfi/rabia"
)

// LeaderElectionMode selects how leader.Manager picks a leader for
// the current view.
type LeaderElectionMode uint8

const (
	// LocalElection derives the leader deterministically from the live
	// topology alone (rabia.MinNodeID), with no cross-node exchange.
	LocalElection LeaderElectionMode = iota
	// ConsensusElection has the deterministic candidate submit a
	// LeaderProposal command through core.RabiaCore; the leader is affirmed
	// only once that command commits.
	ConsensusElection
)

func (m LeaderElectionMode) String() string {
	switch m {
	case LocalElection:
		return "local"
	case ConsensusElection:
		return "consensus"
	default:
		return "unknown"
	}
}

// Config is the full set of parameters a Rabia node is constructed with.
type Config struct {
	// ExpectedCluster is the full membership the quorum size is computed
	// over; it does not shrink when members go quiet.
	ExpectedCluster []rabia.NodeID
	// SelfNodeID must be a member of ExpectedCluster.
	SelfNodeID rabia.NodeID

	// PhaseTimeout bounds how long core.RabiaCore waits for a quorum of
	// round-1/round-2 votes before retrying the phase.
	PhaseTimeout time.Duration
	// PingInterval is the period between liveness pings sent to each peer.
	PingInterval time.Duration
	// PingTimeout bounds how long a single ping waits for a pong.
	PingTimeout time.Duration
	// MissThreshold is the number of consecutive missed pongs before a peer
	// is marked NodeDown.
	MissThreshold int

	// ProposalRetryDelay is the interval at which leader.Manager, in
	// CONSENSUS mode, retries submitting its LeaderProposal while no leader
	// is committed and no submission is in flight.
	ProposalRetryDelay time.Duration
	// MaxBatchSize is the largest number of commands a proposer will bundle
	// into one Batch.
	MaxBatchSize int
	// MaxBatchDelay bounds how long the proposer waits to fill a batch
	// before cutting it short.
	MaxBatchDelay time.Duration
	// MaxOutstandingItems caps commands buffered awaiting a batch cut, past
	// which submitters block.
	MaxOutstandingItems int

	// LeaderElectionMode selects LOCAL or CONSENSUS election.
	LeaderElectionMode LeaderElectionMode

	// BenchlistMissThreshold is the number of consecutive failed sends
	// (with no successful send or pong in between) before a peer is
	// temporarily benched by the network layer.
	BenchlistMissThreshold int
	// BenchlistMaxDuration is the longest a peer is ever benched before
	// being given another chance regardless of further failures.
	BenchlistMaxDuration time.Duration
}

// Default returns a Config with the timing and batching defaults used when
// an embedding application does not override them. ExpectedCluster and
// SelfNodeID are left unset and must be filled in by the caller.
func Default() Config {
	return Config{
		PhaseTimeout:           200 * time.Millisecond,
		PingInterval:           1 * time.Second,
		PingTimeout:            2 * time.Second,
		MissThreshold:          3,
		ProposalRetryDelay:     500 * time.Millisecond,
		MaxBatchSize:           256,
		MaxBatchDelay:          20 * time.Millisecond,
		MaxOutstandingItems:    4096,
		LeaderElectionMode:     LocalElection,
		BenchlistMissThreshold: 5,
		BenchlistMaxDuration:   30 * time.Second,
	}
}
