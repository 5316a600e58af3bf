// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"container/heap"
	"context"
	"sync"

	"github.com/luxfi/rabia"
)

// sequencer is the single-consumer FIFO commit gate of §4.5: per-slot
// actors decide out of order, but the sequencer releases Committed
// values to the application strictly by slot index. Grounded on the
// donor's beam finalizer, generalized from single-chain linear
// finalization to a min-heap keyed by slot so any number of out-of-order
// arrivals buffer correctly.
type sequencer struct {
	mu      sync.Mutex
	next    rabia.Slot
	pending slotHeap
	notify  chan struct{}

	out chan rabia.Committed
}

func newSequencer(bufSize int) *sequencer {
	s := &sequencer{
		notify: make(chan struct{}, 1),
		out:    make(chan rabia.Committed, bufSize),
	}
	heap.Init(&s.pending)
	return s
}

// submit enqueues a decided slot's commit. It never blocks; ordering is
// enforced by run, not by the caller.
func (s *sequencer) submit(c rabia.Committed) {
	s.mu.Lock()
	heap.Push(&s.pending, c)
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// run drains the heap in slot order, blocking on out when the
// application is slow to consume — this is the back-pressure the error
// handling design calls for instead of dropping commits.
func (s *sequencer) run(ctx context.Context) {
	for {
		s.mu.Lock()
		var ready *rabia.Committed
		if len(s.pending) > 0 && s.pending[0].Slot == s.next {
			v := heap.Pop(&s.pending).(rabia.Committed)
			ready = &v
		}
		s.mu.Unlock()

		if ready == nil {
			select {
			case <-ctx.Done():
				return
			case <-s.notify:
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case s.out <- *ready:
			s.mu.Lock()
			s.next++
			s.mu.Unlock()
		}
	}
}

func (s *sequencer) committed() <-chan rabia.Committed {
	return s.out
}

// slotHeap orders rabia.Committed values by ascending Slot.
type slotHeap []rabia.Committed

func (h slotHeap) Len() int            { return len(h) }
func (h slotHeap) Less(i, j int) bool  { return h[i].Slot < h[j].Slot }
func (h slotHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *slotHeap) Push(x interface{}) { *h = append(*h, x.(rabia.Committed)) }
func (h *slotHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
