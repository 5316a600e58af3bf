// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package core

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/rabia"
	"github.com/stretchr/testify/require"
)

func TestSequencerReleasesInSlotOrder(t *testing.T) {
	require := require.New(t)
	s := newSequencer(16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.run(ctx)

	s.submit(rabia.Committed{Slot: 2})
	s.submit(rabia.Committed{Slot: 0})
	s.submit(rabia.Committed{Slot: 1})

	for want := rabia.Slot(0); want <= 2; want++ {
		select {
		case got := <-s.committed():
			require.Equal(want, got.Slot)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for slot %d", want)
		}
	}
}

func TestSequencerBuffersOutOfOrderDecision(t *testing.T) {
	require := require.New(t)
	s := newSequencer(16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.run(ctx)

	s.submit(rabia.Committed{Slot: 1})

	select {
	case got := <-s.committed():
		t.Fatalf("slot 1 released before slot 0 committed: %+v", got)
	case <-time.After(50 * time.Millisecond):
	}

	s.submit(rabia.Committed{Slot: 0})

	for want := rabia.Slot(0); want <= 1; want++ {
		select {
		case got := <-s.committed():
			require.Equal(want, got.Slot)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for slot %d", want)
		}
	}
}
