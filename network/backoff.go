// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"sync"
	"time"

	"github.com/luxfi/rabia"
)

// Backoff tracks chronically unresponsive peers and benches them for an
// exponentially growing duration, so the liveness detector does not
// hammer a partitioned node at full PingInterval cadence. It is adapted
// from the donor's networking/benchlist manager: failures accumulate
// per-peer and, past missThreshold, the peer is benched; a successful
// response clears the failure count and resets the next bench duration
// to the floor.
type Backoff struct {
	mu            sync.Mutex
	missThreshold int
	maxDuration   time.Duration

	failures map[rabia.NodeID]int
	benched  map[rabia.NodeID]time.Time
	nextWait map[rabia.NodeID]time.Duration
}

const minBackoff = 100 * time.Millisecond

// NewBackoff returns a Backoff that benches a peer after missThreshold
// consecutive failures, doubling the bench duration on repeated offenses
// up to maxDuration.
func NewBackoff(missThreshold int, maxDuration time.Duration) *Backoff {
	return &Backoff{
		missThreshold: missThreshold,
		maxDuration:   maxDuration,
		failures:      make(map[rabia.NodeID]int),
		benched:       make(map[rabia.NodeID]time.Time),
		nextWait:      make(map[rabia.NodeID]time.Duration),
	}
}

// IsBenched reports whether node is currently backed off. A bench that
// has expired is cleared and reports false.
func (b *Backoff) IsBenched(node rabia.NodeID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	until, ok := b.benched[node]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(b.benched, node)
		return false
	}
	return true
}

// RegisterFailure records a send or liveness failure for node, benching
// it once missThreshold consecutive failures accumulate.
func (b *Backoff) RegisterFailure(node rabia.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, benched := b.benched[node]; benched {
		return
	}

	b.failures[node]++
	if b.failures[node] < b.missThreshold {
		return
	}

	wait := b.nextWait[node]
	if wait == 0 {
		wait = minBackoff
	} else {
		wait *= 2
	}
	if wait > b.maxDuration {
		wait = b.maxDuration
	}
	b.nextWait[node] = wait
	b.benched[node] = time.Now().Add(wait)
	b.failures[node] = 0
}

// RegisterResponse clears node's failure count on a successful send or
// pong, resetting its backoff ladder.
func (b *Backoff) RegisterResponse(node rabia.NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.failures, node)
	delete(b.nextWait, node)
}
