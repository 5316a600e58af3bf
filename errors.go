// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rabia

import "errors"

// Sentinel errors shared across package boundaries. Component-local errors
// (e.g. config validation) live in their own packages.
var (
	// ErrQuorumLost names the condition of QuorumState being DISAPPEARED.
	// No function in this module returns it: while quorum is lost, core
	// keeps cut batches queued instead of proposing them.
	ErrQuorumLost = errors.New("rabia: quorum lost")

	// ErrSlotDecided names an attempt to change a slot's state after it has
	// decided. No function in this module returns it: a decided slot actor
	// drops late votes and counts them on metrics StaleMessages.
	ErrSlotDecided = errors.New("rabia: slot already decided")

	// ErrStaleView names a LeaderProposal whose view sequence is lower than
	// the locally observed one. No function in this module returns it:
	// leader.Manager.OnLeaderCommitted drops such a commit and counts it on
	// metrics StaleMessages.
	ErrStaleView = errors.New("rabia: stale view sequence")

	// ErrProtocolViolation marks a locally-detected violation of the
	// single-vote-per-(node,phase,round) invariant. The offending message
	// is dropped and the violation is counted, never panicked on.
	ErrProtocolViolation = errors.New("rabia: protocol violation")

	// ErrUnknownBatch names a catch-up request for a correlation ID the
	// asked node does not hold. No function in this module returns it:
	// catch-up answers with a BatchFetchResponse whose Found is false.
	ErrUnknownBatch = errors.New("rabia: unknown batch correlation id")

	// ErrStopped names an operation invoked on a component after Stop().
	// No function in this module returns it.
	ErrStopped = errors.New("rabia: component stopped")
)
