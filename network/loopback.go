// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/rabia"
)

// directedLink identifies one ordered (from, to) line on a Fabric.
type directedLink struct {
	from, to rabia.NodeID
}

// Fabric is a shared in-process medium a set of Loopback transports dial
// through, for single-process multi-node tests and simulations. It holds
// one buffered channel per ordered (sender, receiver) pair, so a
// Loopback's Listen only ever sees frames a specific peer addressed to
// it — mirroring the per-connection semantics of a real transport.
type Fabric struct {
	mu    sync.Mutex
	lines map[directedLink]chan []byte
}

// NewFabric returns an empty Fabric.
func NewFabric() *Fabric {
	return &Fabric{lines: make(map[directedLink]chan []byte)}
}

func (f *Fabric) lineFor(from, to rabia.NodeID) chan []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := directedLink{from: from, to: to}
	if ch, ok := f.lines[key]; ok {
		return ch
	}
	ch := make(chan []byte, 256)
	f.lines[key] = ch
	return ch
}

// Loopback is the in-process Transport this module ships: DialSend writes
// directly onto the (self, peer) line on the shared Fabric, with no
// serialization delay or real I/O, and Listen reads the (peer, self) line
// — frames peer addressed to self. It preserves FIFO order within a
// single (sender, receiver) pair, which the protocol never depends on but
// benefits from.
type Loopback struct {
	fabric    *Fabric
	self, peer rabia.NodeID
	out       chan []byte
	in        chan []byte
}

// NewLoopback binds a Loopback transport from self to peer on fabric.
func NewLoopback(fabric *Fabric, self, peer rabia.NodeID) *Loopback {
	return &Loopback{
		fabric: fabric,
		self:   self,
		peer:   peer,
		out:    fabric.lineFor(self, peer),
		in:     fabric.lineFor(peer, self),
	}
}

// DialSend writes data onto the self->peer line.
func (l *Loopback) DialSend(data []byte) error {
	select {
	case l.out <- data:
		return nil
	default:
		return fmt.Errorf("network: loopback line %s->%s is full", l.self, l.peer)
	}
}

// Listen returns frames peer sent addressed to self.
func (l *Loopback) Listen() <-chan []byte {
	return l.in
}

// LoopbackDialer implements Dialer over a shared Fabric for one node
// identified by Self; addr is ignored since Fabric addresses nodes by
// NodeID alone.
type LoopbackDialer struct {
	Fabric *Fabric
	Self   rabia.NodeID
}

// Dial returns a Loopback transport from d.Self to node.
func (d *LoopbackDialer) Dial(_ context.Context, node rabia.NodeID, _ string) (Transport, error) {
	return NewLoopback(d.Fabric, d.Self, node), nil
}
