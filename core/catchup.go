// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"context"
	"sync"

	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/codec"
)

// batchStore holds every batch body this node has produced or received,
// keyed by correlation ID, plus which peer first told us about a
// correlation ID it has not yet sent us the body for — the fetch target
// when this node needs to resolve a V1 decision it didn't originate.
type batchStore struct {
	mu      sync.RWMutex
	bodies  map[rabia.CorrelationID]*rabia.Batch
	sources map[rabia.CorrelationID]rabia.NodeID
}

func newBatchStore() *batchStore {
	return &batchStore{
		bodies:  make(map[rabia.CorrelationID]*rabia.Batch),
		sources: make(map[rabia.CorrelationID]rabia.NodeID),
	}
}

func (s *batchStore) store(batch *rabia.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[batch.CorrelationID] = batch
}

func (s *batchStore) get(cid rabia.CorrelationID) (*rabia.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bodies[cid]
	return b, ok
}

func (s *batchStore) rememberSource(cid rabia.CorrelationID, from rabia.NodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sources[cid]; !ok {
		s.sources[cid] = from
	}
}

// requestBatch issues a BatchFetchRequest to the best-known source for
// cid — supplementing §4.4's mention of catch-up with the concrete
// request/response round over ClusterNetwork.Send.
func (c *RabiaCore) requestBatch(ctx context.Context, from rabia.NodeID, cid rabia.CorrelationID, slot rabia.Slot) {
	c.mx.CatchupRequests.Inc()
	c.net.Send(ctx, from, &codec.Message{BatchFetchRequest: &codec.BatchFetchRequestMsg{
		From:          c.self,
		CorrelationID: cid,
	}})
}

func (c *RabiaCore) handleBatchFetchRequest(ctx context.Context, from rabia.NodeID, req *codec.BatchFetchRequestMsg) {
	batch, ok := c.batches.get(req.CorrelationID)
	resp := &codec.BatchFetchResponseMsg{From: c.self, Found: ok}
	if ok {
		resp.Batch = batch
	}
	c.net.Send(ctx, from, &codec.Message{BatchFetchResp: resp})
}

func (c *RabiaCore) handleBatchFetchResponse(ctx context.Context, resp *codec.BatchFetchResponseMsg) {
	if !resp.Found || resp.Batch == nil {
		c.log.Debug("core: catch-up source did not have the requested batch", log.Stringer("peer", resp.From))
		return
	}
	c.batches.store(resp.Batch)

	c.dirMu.Lock()
	actors := make([]*slotActor, 0, len(c.directory))
	for _, a := range c.directory {
		actors = append(actors, a)
	}
	c.dirMu.Unlock()

	for _, a := range actors {
		a.send(ctx, msgBatchResolved{correlationID: resp.Batch.CorrelationID, batch: resp.Batch})
	}
}
