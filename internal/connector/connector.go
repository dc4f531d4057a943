// Package connector abstracts the transports peers connect over.
//
// A Connector owns a set of Peers and buffers everything its transport reports
// (connection attempts, disconnections, received messages) in a thread safe
// queue. Nothing reaches application code until ProcessEvents drains the queue
// on the caller's goroutine, so all session state can be mutated without
// further locking.
package connector

import (
	"errors"
)

// DisconnectReason tells the remote side why a connection ended.
type DisconnectReason string

const (
	DisconnectUnknown      DisconnectReason = "Unknown"
	DisconnectDisconnected DisconnectReason = "Disconnected"
	DisconnectDisposed     DisconnectReason = "Disposed"
	DisconnectKicked       DisconnectReason = "Kicked"
	DisconnectBanned       DisconnectReason = "Banned"
	DisconnectLobbyClosed  DisconnectReason = "LobbyClosed"
	DisconnectServerIsFull DisconnectReason = "ServerIsFull"
	DisconnectDenied       DisconnectReason = "Denied"
)

var knownReasons = map[DisconnectReason]bool{
	DisconnectUnknown:      true,
	DisconnectDisconnected: true,
	DisconnectDisposed:     true,
	DisconnectKicked:       true,
	DisconnectBanned:       true,
	DisconnectLobbyClosed:  true,
	DisconnectServerIsFull: true,
	DisconnectDenied:       true,
}

// ParseDisconnectReason maps text received from a transport to a reason,
// falling back to Unknown.
func ParseDisconnectReason(s string) DisconnectReason {
	if r := DisconnectReason(s); knownReasons[r] {
		return r
	}
	return DisconnectUnknown
}

var (
	ErrPeerDisconnected      = errors.New("peer is disconnected")
	ErrConnectorClosed       = errors.New("connector is closed")
	ErrSendBufferFull        = errors.New("peer send buffer is full")
	ErrNetworkNotInitialized = errors.New("network is not initialized")
)

// Peer is one endpoint of a connection, owned by exactly one Connector.
type Peer interface {
	// ID uniquely identifies the peer within its connector.
	ID() string
	// Secret is known only to this side of the connection.
	Secret() string
	RemoteAddr() string
	// Send queues data for delivery to the remote side.
	Send(data []byte) error
	// Disconnect ends the connection, telling the remote side why. The
	// resulting Disconnected event is raised by the next ProcessEvents.
	Disconnect(reason DisconnectReason) error
}

// Listener receives the events raised by ProcessEvents.
type Listener interface {
	OnConnectionAttempted(peer Peer)
	OnConnected(peer Peer)
	OnDisconnected(peer Peer, reason DisconnectReason)
	OnMessageReceived(peer Peer, data []byte)
}

// Policy decides whether an attempted connection may become connected. A
// rejected peer is disconnected with the returned reason.
type Policy func(peer Peer) (bool, DisconnectReason)

// AllowAll accepts every connection.
func AllowAll(Peer) (bool, DisconnectReason) { return true, "" }

// Policies combines several policies; the first rejection wins.
func Policies(policies ...Policy) Policy {
	return func(peer Peer) (bool, DisconnectReason) {
		for _, policy := range policies {
			if policy == nil {
				continue
			}
			if allowed, reason := policy(peer); !allowed {
				return false, reason
			}
		}
		return true, ""
	}
}

// Connector manages the peers of one transport.
type Connector interface {
	// ProcessEvents raises every event queued since the last call, in arrival
	// order, on the calling goroutine.
	ProcessEvents(listener Listener)
	Peer(id string) (Peer, bool)
	Peers() []Peer
	SetConnectionPolicy(policy Policy)
	IsConnectionAllowed(peer Peer) (bool, DisconnectReason)
	// Close disconnects every peer with reason. The Disconnected events are
	// still delivered by a final ProcessEvents.
	Close(reason DisconnectReason) error
}
