// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package codec

import (
	"time"

	"github.com/luxfi/rabia"
)

// Message is the sealed union of everything one node sends another over
// network.ClusterNetwork. Exactly one of the embedded pointer fields is
// non-nil; gob encodes nil fields as absent, keeping the wire form compact.
type Message struct {
	Proposal          *ProposalMsg
	Round1Vote        *VoteMsg
	Round2Vote        *VoteMsg
	Decision          *DecisionMsg
	BatchFetchRequest *BatchFetchRequestMsg
	BatchFetchResp    *BatchFetchResponseMsg
	Ping              *PingMsg
	Pong              *PongMsg
	LeaderProposal    *LeaderProposalMsg
	LeaderVote        *LeaderVoteMsg
}

// ProposalMsg carries a node's proposed batch for a slot.
type ProposalMsg struct {
	From          rabia.NodeID
	Slot          rabia.Slot
	CorrelationID rabia.CorrelationID
}

// VoteMsg carries one node's vote for a (slot, phase, round). The round is
// not a field of VoteMsg: it is given by which Message field carries the
// vote (Round1Vote or Round2Vote).
type VoteMsg struct {
	From  rabia.NodeID
	Slot  rabia.Slot
	Phase rabia.Phase
	Value rabia.StateValue
}

// DecisionMsg announces a node's local decision for a slot, used to help
// peers that are behind catch up without waiting on the full phase
// machine. CorrelationID is set only when Value is V1 and the sender
// knows the committed batch's identity.
type DecisionMsg struct {
	From          rabia.NodeID
	Slot          rabia.Slot
	Value         rabia.StateValue
	CorrelationID *rabia.CorrelationID
}

// BatchFetchRequestMsg asks the recipient to return the full command batch
// for a correlation ID a node has only seen referenced, not delivered.
type BatchFetchRequestMsg struct {
	From          rabia.NodeID
	CorrelationID rabia.CorrelationID
}

// BatchFetchResponseMsg answers a BatchFetchRequestMsg. Found is false and
// Batch nil when the responder does not hold the requested batch.
type BatchFetchResponseMsg struct {
	From  rabia.NodeID
	Batch *rabia.Batch
	Found bool
}

// PingMsg is a liveness probe; Pong must echo Nonce.
type PingMsg struct {
	From  rabia.NodeID
	Nonce uint64
	Sent  time.Time
}

// PongMsg answers a PingMsg.
type PongMsg struct {
	From  rabia.NodeID
	Nonce uint64
}

// LeaderProposalMsg names a leader candidate for a view under
// config.ConsensusElection mode. It is not sent as a Message of its own:
// core.RabiaCore.SubmitLeaderProposal encodes it as a command inside a
// normal consensus batch, and engine.Engine decodes it from committed
// batches and hands it to leader.Manager.OnLeaderCommitted.
type LeaderProposalMsg struct {
	From     rabia.NodeID
	View     uint64
	Proposed rabia.NodeID
}

// LeaderVoteMsg is a Message variant for answering a LeaderProposalMsg. No
// component in this module sends it, and core.RabiaCore counts one it
// receives as a stale message.
type LeaderVoteMsg struct {
	From   rabia.NodeID
	View   uint64
	Accept bool
}
