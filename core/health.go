// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"context"

	"github.com/luxfi/rabia"
)

// Health is a point-in-time snapshot of RabiaCore's status, generalizing
// the donor's router.HealthConfig / snowman.Consensus.HealthCheck pattern
// to Rabia's slot model. It is not a standalone HTTP surface — the host
// application polls or exports it however it likes.
type Health struct {
	QuorumState        rabia.QuorumState
	Leader             *rabia.NodeID
	HighestCommitted   rabia.Slot
	HasCommitted       bool
	ProtocolViolations uint64
	ActiveSlots        int
}

// HealthCheck returns the current status snapshot. It never blocks on
// slot actors; ActiveSlots is read under the directory's brief lock only,
// and the other fields come from atomics and the leader mutex.
func (c *RabiaCore) HealthCheck(_ context.Context) (Health, error) {
	c.dirMu.Lock()
	active := len(c.directory)
	c.dirMu.Unlock()

	leader, hasLeader := c.currentLeader()

	h := Health{
		QuorumState:      c.quorumState(),
		HighestCommitted: rabia.Slot(c.highestCommitted.Load()),
		HasCommitted:     c.hasCommitted.Load(),
		ActiveSlots:      active,
	}
	if hasLeader {
		h.Leader = &leader
	}
	return h, nil
}
