// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/luxfi/rabia"
)

// batcher accumulates application-supplied commands into Batches by
// size/time threshold, per §4.4's "batch boundaries are a local policy"
// rule. It owns no protocol state; it only decides when to cut a batch
// and hands the result to RabiaCore.proposeBatch.
type batcher struct {
	core    *RabiaCore
	submit  chan []byte
	maxSize int
	maxWait time.Duration
}

func newBatcher(c *RabiaCore) *batcher {
	return &batcher{
		core:    c,
		submit:  make(chan []byte, c.cfg.MaxOutstandingItems),
		maxSize: c.cfg.MaxBatchSize,
		maxWait: c.cfg.MaxBatchDelay,
	}
}

func (b *batcher) run(ctx context.Context) {
	pending := make([][]byte, 0, b.maxSize)
	var timer *time.Timer
	var timerC <-chan time.Time

	cut := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = make([][]byte, 0, b.maxSize)
		b.core.proposeBatch(ctx, batch)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-b.submit:
			pending = append(pending, cmd)
			if len(pending) == 1 {
				timer = time.NewTimer(b.maxWait)
				timerC = timer.C
			}
			if len(pending) >= b.maxSize {
				if timer != nil {
					timer.Stop()
					timerC = nil
				}
				cut()
			}
		case <-timerC:
			timerC = nil
			cut()
		}
	}
}

// newCorrelationID generates a fresh, globally-unique-enough correlation
// ID for a locally-cut batch.
func newCorrelationID() rabia.CorrelationID {
	var id rabia.CorrelationID
	_, _ = rand.Read(id[:])
	return id
}
