// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validators represents the expected cluster: the unweighted,
// fixed membership that rabia.QuorumSize is computed over.
// topology.Manager counts only Set members toward quorum, leader.Manager
// prefers members when picking a candidate, and core sizes its vote
// quorums from QuorumSize. A NodeID outside the set is still recorded in
// the live topology; network.ClusterNetwork does not consult a Set.
package validators

import (
	"sort"

	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/utils/sampler"
)

// Set is the fixed, unweighted expected cluster membership. Unlike the
// stake-weighted validator sets elsewhere in this codebase's lineage,
// Rabia gives every expected member equal standing: quorum size depends
// only on Len(), never on a weight.
type Set interface {
	Has(rabia.NodeID) bool
	Len() int
	List() []rabia.NodeID
	// QuorumSize returns rabia.QuorumSize(Len()).
	QuorumSize() int
	// Sample returns size distinct members chosen uniformly at random. It
	// errors if size exceeds Len().
	Sample(size int) ([]rabia.NodeID, error)
}

// set is the concrete, immutable Set implementation. Membership for a
// running node never changes after construction: ExpectedCluster is fixed
// at startup, per config.Config.
type set struct {
	members map[rabia.NodeID]struct{}
	list    []rabia.NodeID
}

// NewSet returns a Set over members, deduplicated. Order of List is
// stable (sorted by string form) so callers get deterministic iteration
// for things like LOCAL leader election tie-breaking.
func NewSet(members []rabia.NodeID) Set {
	seen := make(map[rabia.NodeID]struct{}, len(members))
	list := make([]rabia.NodeID, 0, len(members))
	for _, m := range members {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool {
		return rabia.CompareNodeID(list[i], list[j]) < 0
	})
	return &set{members: seen, list: list}
}

func (s *set) Has(id rabia.NodeID) bool {
	_, ok := s.members[id]
	return ok
}

func (s *set) Len() int {
	return len(s.list)
}

func (s *set) List() []rabia.NodeID {
	out := make([]rabia.NodeID, len(s.list))
	copy(out, s.list)
	return out
}

func (s *set) QuorumSize() int {
	return rabia.QuorumSize(len(s.list))
}

func (s *set) Sample(size int) ([]rabia.NodeID, error) {
	if size > len(s.list) {
		return nil, errSampleTooLarge(size, len(s.list))
	}
	u := sampler.NewUniform()
	if err := u.Initialize(len(s.list)); err != nil {
		return nil, err
	}
	indices, ok := u.Sample(size)
	if !ok {
		return nil, errSampleTooLarge(size, len(s.list))
	}
	out := make([]rabia.NodeID, size)
	for i, idx := range indices {
		out[i] = s.list[idx]
	}
	return out, nil
}
