// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package validators

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/luxfi/rabia"
	"github.com/stretchr/testify/require"
)

func TestSetHasAndLen(t *testing.T) {
	require := require.New(t)

	members := make([]rabia.NodeID, 5)
	for i := range members {
		members[i] = ids.GenerateTestNodeID()
	}

	s := NewSet(members)
	require.Equal(5, s.Len())
	for _, m := range members {
		require.True(s.Has(m))
	}
	require.False(s.Has(ids.GenerateTestNodeID()))
}

func TestSetDeduplicates(t *testing.T) {
	require := require.New(t)
	n := ids.GenerateTestNodeID()
	s := NewSet([]rabia.NodeID{n, n, n})
	require.Equal(1, s.Len())
}

func TestSetQuorumSize(t *testing.T) {
	require := require.New(t)

	members := make([]rabia.NodeID, 5)
	for i := range members {
		members[i] = ids.GenerateTestNodeID()
	}
	s := NewSet(members)
	require.Equal(3, s.QuorumSize())
}

func TestSetSampleWithinBounds(t *testing.T) {
	require := require.New(t)

	members := make([]rabia.NodeID, 7)
	for i := range members {
		members[i] = ids.GenerateTestNodeID()
	}
	s := NewSet(members)

	sample, err := s.Sample(3)
	require.NoError(err)
	require.Len(sample, 3)

	seen := make(map[rabia.NodeID]bool)
	for _, id := range sample {
		require.True(s.Has(id))
		require.False(seen[id], "sample must not repeat members")
		seen[id] = true
	}
}

func TestSetSampleTooLarge(t *testing.T) {
	require := require.New(t)
	s := NewSet([]rabia.NodeID{ids.GenerateTestNodeID()})
	_, err := s.Sample(2)
	require.Error(err)
}

func TestSetListIsSortedAndStable(t *testing.T) {
	require := require.New(t)

	members := make([]rabia.NodeID, 6)
	for i := range members {
		members[i] = ids.GenerateTestNodeID()
	}
	s := NewSet(members)

	first := s.List()
	second := s.List()
	require.Equal(first, second)

	for i := 1; i < len(first); i++ {
		require.True(rabia.CompareNodeID(first[i-1], first[i]) < 0)
	}
}
