// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package quorum tallies one vote per node for a single (slot, phase,
// round) and reports when a value has reached a majority of the expected
// cluster. It is used by core for round-1/round-2 StateValue votes.
package quorum

import (
	"sync"

	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/utils/bag"
)

// Detector tallies at most one vote per node and reports whether any
// single value has reached the configured quorum size. A later vote from
// the same node overwrites its earlier one rather than double-counting,
// matching the protocol's single-vote-per-(node,phase,round) invariant.
// The per-value tally is a bag.Bag rather than a hand-rolled map so
// decrementing a superseded vote and counting a new one share the same
// add/remove bookkeeping.
type Detector struct {
	mu         sync.Mutex
	quorumSize int
	votes      map[rabia.NodeID]rabia.StateValue
	tally      bag.Bag[rabia.StateValue]
}

// NewDetector returns a Detector requiring quorumSize matching votes
// before Majority reports a winner.
func NewDetector(quorumSize int) *Detector {
	return &Detector{
		quorumSize: quorumSize,
		votes:      make(map[rabia.NodeID]rabia.StateValue),
		tally:      bag.New[rabia.StateValue](),
	}
}

// Add records node's vote, replacing any earlier vote from the same node.
// It reports true if the node had already voted for a different value
// (the new vote still replaces it), and false for a first vote or a
// repeat of the same value. Core detects protocol violations with VoteOf
// before calling Add, not with this result.
func (d *Detector) Add(node rabia.NodeID, value rabia.StateValue) (changed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.votes[node]; ok {
		if prev == value {
			return false
		}
		d.tally.Remove(prev)
		changed = true
	}
	d.votes[node] = value
	d.tally.Add(value)
	return changed
}

// Majority returns the value with at least quorumSize votes and true, or
// the zero value and false if no value has reached quorum yet. At most one
// value can reach a majority quorum at a time, so the result is
// unambiguous.
func (d *Detector) Majority() (rabia.StateValue, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, value := range d.tally.List() {
		if d.tally.Count(value) >= d.quorumSize {
			return value, true
		}
	}
	return 0, false
}

// VoteOf returns the vote currently recorded for node, if any. Callers
// that must enforce "first vote sticks, conflicting later votes are
// discarded" (the core's protocol-violation rule) check VoteOf before
// calling Add rather than relying on Add's overwrite behavior.
func (d *Detector) VoteOf(node rabia.NodeID) (rabia.StateValue, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.votes[node]
	return v, ok
}

// VotersFor returns the nodes currently recorded as having voted for
// value, in no particular order.
func (d *Detector) VotersFor(value rabia.StateValue) []rabia.NodeID {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]rabia.NodeID, 0, d.tally.Count(value))
	for node, v := range d.votes {
		if v == value {
			out = append(out, node)
		}
	}
	return out
}

// Count returns the number of votes currently recorded for value.
func (d *Detector) Count(value rabia.StateValue) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tally.Count(value)
}

// Voted returns the number of distinct nodes that have voted.
func (d *Detector) Voted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.votes)
}

// Reset clears all recorded votes, for reuse across phases.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.votes = make(map[rabia.NodeID]rabia.StateValue)
	d.tally = bag.New[rabia.StateValue]()
}
