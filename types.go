// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rabia

import (
	"encoding/hex"
	"strings"

	"github.com/luxfi/ids"
)

// NodeID is the cluster's node identity type. It is re-exported from
// github.com/luxfi/ids so every package in this module shares one name for
// it instead of importing the ids package directly.
type NodeID = ids.NodeID

// Slot is an ordinal index identifying one instance of consensus. Slots
// commit in strictly increasing order at each node.
type Slot uint64

// Phase is a non-negative monotonic integer per slot. Phases within a slot
// are strictly ordered; Next returns the successor phase.
type Phase uint64

// Next returns the phase that follows p.
func (p Phase) Next() Phase {
	return p + 1
}

// StateValue is the three-valued vote/decision lattice used by the
// round-1/round-2/coin/decision rules. Round-1 votes never carry VQuestion;
// coin outputs never carry VQuestion; round-2 may carry VQuestion iff no
// majority round-1 value existed.
type StateValue uint8

const (
	// V0 means "I see no value yet" / the binary consensus decided no-op.
	V0 StateValue = iota
	// V1 means "I want some value" / the binary consensus decided a value.
	V1
	// VQuestion marks "undecided, use coin" and is only ever a round-2 vote.
	VQuestion
)

func (v StateValue) String() string {
	switch v {
	case V0:
		return "V0"
	case V1:
		return "V1"
	case VQuestion:
		return "VQuestion"
	default:
		return "StateValue(?)"
	}
}

// CorrelationID uniquely identifies a Batch across all nodes. Batch equality
// is by correlation ID alone.
type CorrelationID [16]byte

func (c CorrelationID) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether c is the zero correlation ID.
func (c CorrelationID) IsZero() bool {
	return c == CorrelationID{}
}

// Batch is a correlation-ID-tagged ordered sequence of opaque commands.
// Commands are uninterpreted []byte payloads; only the correlation ID
// carries semantic weight for equality and catch-up purposes.
type Batch struct {
	CorrelationID CorrelationID
	Commands      [][]byte
}

// Equal reports whether two batches share the same correlation ID. Per the
// data model, batch equality is defined by correlation ID, not contents.
func (b *Batch) Equal(other *Batch) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.CorrelationID == other.CorrelationID
}

// Proposal is (NodeID, Slot, Batch) — at most one proposal per node per
// slot, enforced by the component that records it (core.RabiaCore).
type Proposal struct {
	NodeID        NodeID
	Slot          Slot
	CorrelationID CorrelationID
}

// CompareNodeID provides a total, deterministic order over NodeIDs for
// tie-breaking (e.g. LOCAL leader election's "minimum NodeID" rule). It
// compares the string representation rather than assuming a particular byte
// layout, since NodeID's concrete representation is owned by github.com/
// luxfi/ids.
func CompareNodeID(a, b NodeID) int {
	return strings.Compare(a.String(), b.String())
}

// MinNodeID returns the NodeID that sorts first under CompareNodeID. It
// panics if nodes is empty; callers are expected to guard for the empty
// topology case themselves (see leader.Manager's candidate selection).
func MinNodeID(nodes []NodeID) NodeID {
	min := nodes[0]
	for _, n := range nodes[1:] {
		if CompareNodeID(n, min) < 0 {
			min = n
		}
	}
	return min
}

// QuorumSize computes ⌊n/2⌋+1, the smallest majority over n members.
func QuorumSize(n int) int {
	return n/2 + 1
}
