package connector

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

type eventType int

const (
	eventConnectionAttempted eventType = iota
	eventDisconnected
	eventMessageReceived
)

type event struct {
	typ    eventType
	peer   Peer
	reason DisconnectReason
	data   []byte
}

// base implements the event queue and peer registry shared by every
// transport. Transports only ever call the enqueue methods, possibly from
// their own goroutines.
type base struct {
	logger logrus.FieldLogger

	mu      sync.Mutex
	events  []event
	closed  bool
	pending map[string]Peer
	peers   map[string]Peer
	policy  Policy
}

func (b *base) init(logger logrus.FieldLogger) {
	b.logger = logger
	b.pending = make(map[string]Peer)
	b.peers = make(map[string]Peer)
	b.policy = AllowAll
}

func (b *base) enqueueAttempt(peer Peer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.pending[peer.ID()] = peer
	b.events = append(b.events, event{typ: eventConnectionAttempted, peer: peer})
	return true
}

func (b *base) enqueueMessage(peer Peer, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.events = append(b.events, event{typ: eventMessageReceived, peer: peer, data: data})
}

// Disconnections are queued even after Close so that they can be flushed.
func (b *base) enqueueDisconnect(peer Peer, reason DisconnectReason) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event{typ: eventDisconnected, peer: peer, reason: reason})
}

func (b *base) ProcessEvents(listener Listener) {
	b.mu.Lock()
	events := b.events
	b.events = nil
	b.mu.Unlock()

	for _, e := range events {
		switch e.typ {
		case eventConnectionAttempted:
			b.processAttempt(listener, e.peer)
		case eventDisconnected:
			b.processDisconnect(listener, e.peer, e.reason)
		case eventMessageReceived:
			// Messages still queued from a peer this side disconnected are
			// dropped. Messages queued before a remote disconnect precede its
			// event and are delivered.
			if b.isRegistered(e.peer) && !isDisconnecting(e.peer) {
				listener.OnMessageReceived(e.peer, e.data)
			}
		}
	}
}

func (b *base) processAttempt(listener Listener, peer Peer) {
	b.mu.Lock()
	_, stillPending := b.pending[peer.ID()]
	delete(b.pending, peer.ID())
	closed := b.closed
	b.mu.Unlock()

	// The peer went away before its attempt was processed.
	if !stillPending || closed {
		return
	}

	listener.OnConnectionAttempted(peer)

	if allowed, reason := b.IsConnectionAllowed(peer); !allowed {
		b.logger.WithFields(logrus.Fields{"peer": peer.ID(), "address": peer.RemoteAddr()}).
			Infof("rejected connection: %s", reason)
		_ = peer.Disconnect(reason)
		return
	}

	b.mu.Lock()
	b.peers[peer.ID()] = peer
	b.mu.Unlock()

	listener.OnConnected(peer)
}

func (b *base) processDisconnect(listener Listener, peer Peer, reason DisconnectReason) {
	b.mu.Lock()
	delete(b.pending, peer.ID())
	registered, ok := b.peers[peer.ID()]
	if ok && registered == peer {
		delete(b.peers, peer.ID())
	}
	b.mu.Unlock()

	if ok && registered == peer {
		listener.OnDisconnected(peer, reason)
	}
}

func isDisconnecting(peer Peer) bool {
	p, ok := peer.(interface{ disconnecting() bool })
	return ok && p.disconnecting()
}

func (b *base) isRegistered(peer Peer) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	registered, ok := b.peers[peer.ID()]
	return ok && registered == peer
}

func (b *base) Peer(id string) (Peer, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	peer, ok := b.peers[id]
	return peer, ok
}

// Peers returns the connected peers ordered by id.
func (b *base) Peers() []Peer {
	b.mu.Lock()
	defer b.mu.Unlock()
	peers := make([]Peer, 0, len(b.peers))
	for _, peer := range b.peers {
		peers = append(peers, peer)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID() < peers[j].ID() })
	return peers
}

func (b *base) SetConnectionPolicy(policy Policy) {
	if policy == nil {
		policy = AllowAll
	}
	b.mu.Lock()
	b.policy = policy
	b.mu.Unlock()
}

func (b *base) IsConnectionAllowed(peer Peer) (bool, DisconnectReason) {
	b.mu.Lock()
	policy := b.policy
	b.mu.Unlock()

	allowed, reason := policy(peer)
	if !allowed && reason == "" {
		reason = DisconnectDenied
	}
	return allowed, reason
}

// closePeers stops accepting new events and disconnects every known peer.
func (b *base) closePeers(reason DisconnectReason) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return false
	}
	b.closed = true
	peers := make([]Peer, 0, len(b.peers)+len(b.pending))
	for _, peer := range b.peers {
		peers = append(peers, peer)
	}
	for _, peer := range b.pending {
		peers = append(peers, peer)
	}
	b.mu.Unlock()

	for _, peer := range peers {
		_ = peer.Disconnect(reason)
	}
	return true
}

func (b *base) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
