// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"fmt"

	"github.com/luxfi/rabia"
)

// Sentinel errors returned by Validate, wrapped with fmt.Errorf("%w: ...")
// context where a bare sentinel would not say which field was at fault.
var (
	ErrEmptyCluster     = errors.New("config: expected cluster is empty")
	ErrSelfNotInCluster = errors.New("config: self node id is not a member of the expected cluster")
	ErrDuplicateNode    = errors.New("config: expected cluster contains a duplicate node id")
	ErrNonPositive      = errors.New("config: duration or count must be positive")
	ErrBadQuorum        = errors.New("config: quorum size is not a majority of the expected cluster")
)

// Validate performs the fatal startup checks every Rabia node must pass
// before its components are constructed. It returns the first violation
// found, wrapped with enough context to name the offending field.
func (c *Config) Validate() error {
	n := len(c.ExpectedCluster)
	if n == 0 {
		return ErrEmptyCluster
	}

	seen := make(map[rabia.NodeID]struct{}, n)
	selfPresent := false
	for _, id := range c.ExpectedCluster {
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateNode, id)
		}
		seen[id] = struct{}{}
		if id == c.SelfNodeID {
			selfPresent = true
		}
	}
	if !selfPresent {
		return fmt.Errorf("%w: %s", ErrSelfNotInCluster, c.SelfNodeID)
	}

	// quorumSize must be a true majority: less than that admits two
	// disjoint quorums deciding different values in the same slot.
	q := rabia.QuorumSize(n)
	if q <= n/2 || q > n {
		return fmt.Errorf("%w: n=%d quorum=%d", ErrBadQuorum, n, q)
	}

	positiveDurations := map[string]bool{
		"PhaseTimeout":       c.PhaseTimeout > 0,
		"PingInterval":       c.PingInterval > 0,
		"PingTimeout":        c.PingTimeout > 0,
		"ProposalRetryDelay": c.ProposalRetryDelay > 0,
		"MaxBatchDelay":      c.MaxBatchDelay > 0,
	}
	for name, ok := range positiveDurations {
		if !ok {
			return fmt.Errorf("%w: %s", ErrNonPositive, name)
		}
	}

	positiveCounts := map[string]bool{
		"MissThreshold":          c.MissThreshold > 0,
		"MaxBatchSize":           c.MaxBatchSize > 0,
		"MaxOutstandingItems":    c.MaxOutstandingItems > 0,
		"BenchlistMissThreshold": c.BenchlistMissThreshold > 0,
	}
	for name, ok := range positiveCounts {
		if !ok {
			return fmt.Errorf("%w: %s", ErrNonPositive, name)
		}
	}

	if c.BenchlistMaxDuration <= 0 {
		return fmt.Errorf("%w: BenchlistMaxDuration", ErrNonPositive)
	}
	if c.MaxOutstandingItems < c.MaxBatchSize {
		return fmt.Errorf("config: MaxOutstandingItems (%d) must be >= MaxBatchSize (%d)", c.MaxOutstandingItems, c.MaxBatchSize)
	}

	return nil
}
