// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	require := require.New(t)
	reg := prometheus.NewRegistry()

	m, err := New(reg)
	require.NoError(err)
	require.NotNil(m)

	m.ProtocolViolations.Inc()
	m.SlotsCommitted.Add(3)
	m.QuorumState.Set(1)

	families, err := reg.Gather()
	require.NoError(err)
	require.NotEmpty(families)
}

func TestNewRejectsDoubleRegistration(t *testing.T) {
	require := require.New(t)
	reg := prometheus.NewRegistry()

	_, err := New(reg)
	require.NoError(err)

	_, err = New(reg)
	require.Error(err)
}

func TestNoOpIsUsable(t *testing.T) {
	require := require.New(t)
	m := NoOp()
	require.NotPanics(func() {
		m.CoinFlips.Inc()
		m.LeaderChanges.Inc()
		m.CatchupRequests.Inc()
	})
}
