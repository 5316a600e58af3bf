// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"testing"
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/codec"
	"github.com/luxfi/rabia/metrics"
	"github.com/stretchr/testify/require"
)

func newTestNetwork(fabric *Fabric, self rabia.NodeID) *ClusterNetwork {
	dialer := &LoopbackDialer{Fabric: fabric, Self: self}
	return New(self, dialer, metrics.NoOp(), log.NewNoOpLogger(), 20*time.Millisecond, 50*time.Millisecond, 3, 5, time.Second)
}

func TestSendAndReceiveRoundTrip(t *testing.T) {
	require := require.New(t)
	fabric := NewFabric()

	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()

	netA := newTestNetwork(fabric, a)
	netB := newTestNetwork(fabric, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	netA.Start(ctx)
	netB.Start(ctx)
	defer netA.Stop()
	defer netB.Stop()

	require.NoError(netA.Connect(ctx, b, ""))
	require.NoError(netB.Connect(ctx, a, ""))

	var corr rabia.CorrelationID
	netA.Send(ctx, b, &codec.Message{Proposal: &codec.ProposalMsg{From: a, Slot: 1, CorrelationID: corr}})

	select {
	case env := <-netB.Inbox():
		require.Equal(a, env.From)
		require.NotNil(env.Msg.Proposal)
		require.Equal(rabia.Slot(1), env.Msg.Proposal.Slot)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestBroadcastReachesAllPeers(t *testing.T) {
	require := require.New(t)
	fabric := NewFabric()

	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()
	c := ids.GenerateTestNodeID()

	netA := newTestNetwork(fabric, a)
	netB := newTestNetwork(fabric, b)
	netC := newTestNetwork(fabric, c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	netA.Start(ctx)
	netB.Start(ctx)
	netC.Start(ctx)
	defer netA.Stop()
	defer netB.Stop()
	defer netC.Stop()

	require.NoError(netA.Connect(ctx, b, ""))
	require.NoError(netA.Connect(ctx, c, ""))
	require.NoError(netB.Connect(ctx, a, ""))
	require.NoError(netC.Connect(ctx, a, ""))

	netA.Broadcast(ctx, &codec.Message{Ping: &codec.PingMsg{From: a, Nonce: 99}})

	for _, inbox := range []<-chan Envelope{netB.Inbox(), netC.Inbox()} {
		select {
		case <-inbox:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast")
		}
	}
}

func TestPingPongKeepsPeerAlive(t *testing.T) {
	require := require.New(t)
	fabric := NewFabric()

	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()

	netA := newTestNetwork(fabric, a)
	netB := newTestNetwork(fabric, b)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	netA.Start(ctx)
	netB.Start(ctx)
	defer netA.Stop()
	defer netB.Stop()

	require.NoError(netA.Connect(ctx, b, ""))
	require.NoError(netB.Connect(ctx, a, ""))

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-netB.Inbox():
				_ = env
			}
		}
	}()

	select {
	case down := <-netA.NodeDown():
		t.Fatalf("unexpected NodeDown for %s while peer is responsive", down)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestListNodesReflectsConnectDisconnect(t *testing.T) {
	require := require.New(t)
	fabric := NewFabric()

	a := ids.GenerateTestNodeID()
	b := ids.GenerateTestNodeID()

	netA := newTestNetwork(fabric, a)
	ctx := context.Background()
	require.NoError(netA.Connect(ctx, b, ""))
	require.ElementsMatch([]rabia.NodeID{b}, netA.ListNodes())

	netA.Disconnect(b)
	require.Empty(netA.ListNodes())
}
