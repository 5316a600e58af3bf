// Copyright (C) 2020-2026, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package network implements ClusterNetwork: a directed, best-effort,
// loss-tolerant message channel between named nodes, a single inbound
// dispatcher, and the ping/pong liveness cadence that feeds topology's
// quorum machine. Wire framing is delegated to the codec package; the
// transport itself is pluggable (see Transport).
package network

import (
	"context"
	"sync"
	"time"

	"github.com/luxfi/log"
	"github.com/luxfi/rabia"
	"github.com/luxfi/rabia/codec"
	"github.com/luxfi/rabia/metrics"
)

// Transport is the pluggable wire layer a ClusterNetwork sends framed
// bytes over. A production deployment plugs in TCP/TLS or gRPC; this
// module ships one concrete implementation, the in-process Loopback.
type Transport interface {
	// DialSend delivers data to the peer this Transport is bound to. It
	// returns an error only for conditions the caller should log and
	// drop — it must never block indefinitely.
	DialSend(data []byte) error
	// Listen returns the channel inbound frames from this peer arrive on.
	// ClusterNetwork stops reading it when it is closed or when the peer
	// is disconnected; the Loopback transport never closes it.
	Listen() <-chan []byte
}

// Dialer resolves a peer NodeID to a Transport, established by Connect.
type Dialer interface {
	Dial(ctx context.Context, node rabia.NodeID, addr string) (Transport, error)
}

// ClusterNetwork is the node-local networking component: it multiplexes
// per-peer Transports behind NodeID-addressed Broadcast/Send, decodes
// every inbound frame onto one Inbox channel, and runs the ping/pong
// liveness cadence.
type ClusterNetwork struct {
	self   rabia.NodeID
	dialer Dialer
	log    log.Logger
	mx     *metrics.Metrics

	pingInterval  time.Duration
	pingTimeout   time.Duration
	missThreshold int

	backoff *Backoff

	mu    sync.Mutex
	peers map[rabia.NodeID]*peerConn

	inbox      chan Envelope
	livenessCh chan rabia.NodeID // peers to report NodeDown

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Envelope pairs a decoded message with the peer it arrived from.
type Envelope struct {
	From rabia.NodeID
	Msg  *codec.Message
}

type peerConn struct {
	transport Transport
	cancel    context.CancelFunc

	mu          sync.Mutex
	nonce       uint64
	lastPongAt  time.Time
	misses      int
	pendingPing uint64
}

// New constructs a ClusterNetwork bound to self. dialer resolves
// addresses supplied to Connect; mx and logger may be metrics.NoOp() and
// log.NewNoOpLogger() respectively for tests.
func New(self rabia.NodeID, dialer Dialer, mx *metrics.Metrics, logger log.Logger, pingInterval, pingTimeout time.Duration, missThreshold int, benchlistMissThreshold int, benchlistMaxDuration time.Duration) *ClusterNetwork {
	return &ClusterNetwork{
		self:          self,
		dialer:        dialer,
		log:           logger,
		mx:            mx,
		pingInterval:  pingInterval,
		pingTimeout:   pingTimeout,
		missThreshold: missThreshold,
		backoff:       NewBackoff(benchlistMissThreshold, benchlistMaxDuration),
		peers:         make(map[rabia.NodeID]*peerConn),
		inbox:         make(chan Envelope, 256),
		livenessCh:    make(chan rabia.NodeID, 16),
	}
}

// Inbox is the single dispatcher channel every inbound message, from any
// peer and of any message type, is delivered on in arrival order per
// sender.
func (n *ClusterNetwork) Inbox() <-chan Envelope {
	return n.inbox
}

// NodeDown reports peers the liveness detector gave up on after
// MissThreshold consecutive unanswered pings.
func (n *ClusterNetwork) NodeDown() <-chan rabia.NodeID {
	return n.livenessCh
}

// Start begins the liveness ticker; per-peer read pumps are started by
// Connect. It is
// idempotent with Stop: calling Start after Stop re-arms a fresh root
// context.
func (n *ClusterNetwork) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(1)
	go n.livenessLoop(ctx)
}

// Stop cancels every peer read pump and the liveness ticker, then waits
// for them to exit.
func (n *ClusterNetwork) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()
}

// Connect establishes a Transport to node at addr and starts pumping its
// inbound frames onto Inbox. Re-connecting an already-connected node
// replaces its Transport.
func (n *ClusterNetwork) Connect(ctx context.Context, node rabia.NodeID, addr string) error {
	t, err := n.dialer.Dial(ctx, node, addr)
	if err != nil {
		return err
	}

	pctx, cancel := context.WithCancel(ctx)
	pc := &peerConn{transport: t, cancel: cancel}

	n.mu.Lock()
	if old, ok := n.peers[node]; ok {
		old.cancel()
	}
	n.peers[node] = pc
	n.mu.Unlock()

	n.wg.Add(1)
	go n.readPump(pctx, node, pc)
	return nil
}

// Disconnect tears down node's Transport and removes it from ListNodes.
func (n *ClusterNetwork) Disconnect(node rabia.NodeID) {
	n.mu.Lock()
	pc, ok := n.peers[node]
	if ok {
		delete(n.peers, node)
	}
	n.mu.Unlock()
	if ok {
		pc.cancel()
	}
}

// ListNodes returns the currently connected peers, excluding self.
func (n *ClusterNetwork) ListNodes() []rabia.NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]rabia.NodeID, 0, len(n.peers))
	for id := range n.peers {
		out = append(out, id)
	}
	return out
}

// Broadcast delivers msg to every known peer. Failures are logged and
// dropped; Broadcast never blocks on a single unresponsive peer beyond
// its transport's own send semantics.
func (n *ClusterNetwork) Broadcast(ctx context.Context, msg *codec.Message) {
	n.mu.Lock()
	targets := make([]rabia.NodeID, 0, len(n.peers))
	for id := range n.peers {
		targets = append(targets, id)
	}
	n.mu.Unlock()

	for _, id := range targets {
		n.Send(ctx, id, msg)
	}
}

// Send delivers msg to node. A benched (backed-off) peer is skipped
// silently; this is the same "drop and log" contract as any other
// transient send failure.
func (n *ClusterNetwork) Send(ctx context.Context, node rabia.NodeID, msg *codec.Message) {
	if n.backoff.IsBenched(node) {
		return
	}

	n.mu.Lock()
	pc, ok := n.peers[node]
	n.mu.Unlock()
	if !ok {
		return
	}

	data, err := codec.Codec.Marshal(msg)
	if err != nil {
		n.log.Debug("network: failed to encode outbound message", log.Err(err))
		return
	}
	if err := pc.transport.DialSend(data); err != nil {
		n.backoff.RegisterFailure(node)
		n.log.Debug("network: send failed", log.Stringer("peer", node), log.Err(err))
		return
	}
	n.backoff.RegisterResponse(node)
}

func (n *ClusterNetwork) readPump(ctx context.Context, from rabia.NodeID, pc *peerConn) {
	defer n.wg.Done()
	ch := pc.transport.Listen()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-ch:
			if !ok {
				return
			}
			var msg codec.Message
			if err := codec.Codec.Unmarshal(data, &msg); err != nil {
				n.mx.StaleMessages.Inc()
				n.log.Debug("network: dropping undecodable frame", log.Stringer("peer", from), log.Err(err))
				continue
			}
			if msg.Pong != nil {
				n.handlePong(from, msg.Pong.Nonce)
				continue
			}
			if msg.Ping != nil {
				n.handlePing(ctx, from, msg.Ping.Nonce)
				continue
			}
			select {
			case n.inbox <- Envelope{From: from, Msg: &msg}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (n *ClusterNetwork) handlePing(ctx context.Context, from rabia.NodeID, nonce uint64) {
	n.Send(ctx, from, &codec.Message{Pong: &codec.PongMsg{From: n.self, Nonce: nonce}})
}

func (n *ClusterNetwork) handlePong(from rabia.NodeID, nonce uint64) {
	n.mu.Lock()
	pc, ok := n.peers[from]
	n.mu.Unlock()
	if !ok {
		return
	}

	pc.mu.Lock()
	if nonce == pc.pendingPing {
		pc.lastPongAt = time.Now()
		pc.misses = 0
	}
	pc.mu.Unlock()
	n.backoff.RegisterResponse(from)
}

func (n *ClusterNetwork) livenessLoop(ctx context.Context) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.pingAll(ctx)
		}
	}
}

func (n *ClusterNetwork) pingAll(ctx context.Context) {
	n.mu.Lock()
	peers := make(map[rabia.NodeID]*peerConn, len(n.peers))
	for id, pc := range n.peers {
		peers[id] = pc
	}
	n.mu.Unlock()

	for id, pc := range peers {
		pc.mu.Lock()
		pc.nonce++
		nonce := pc.nonce
		pc.pendingPing = nonce
		missedLast := !pc.lastPongAt.IsZero() && time.Since(pc.lastPongAt) > n.pingTimeout
		if missedLast {
			pc.misses++
		}
		misses := pc.misses
		pc.mu.Unlock()

		if misses >= n.missThreshold {
			select {
			case n.livenessCh <- id:
			default:
			}
			continue
		}

		n.Send(ctx, id, &codec.Message{Ping: &codec.PingMsg{From: n.self, Nonce: nonce, Sent: time.Now()}})
	}
}
