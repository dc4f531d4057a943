package connector

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LocalAddr is the remote address reported by in-process peers.
const LocalAddr = "local"

// LocalConnector connects peers living in the same process. Two local
// connectors are paired with Connect; whatever one side sends is queued on
// the other side and raised by its ProcessEvents, exactly like a network
// transport would.
type LocalConnector struct {
	base
}

func NewLocalConnector(logger logrus.FieldLogger) *LocalConnector {
	c := &LocalConnector{}
	c.init(logger)
	return c
}

// Connect links c to remote. Both connectors see a connection attempt on their
// next ProcessEvents. The returned peer is c's handle on remote.
func (c *LocalConnector) Connect(remote *LocalConnector) (Peer, error) {
	if c.isClosed() || remote.isClosed() {
		return nil, ErrConnectorClosed
	}

	l := &localLink{}
	near := &localPeer{id: uuid.New().String(), secret: uuid.New().String(), owner: c, link: l}
	far := &localPeer{id: uuid.New().String(), secret: uuid.New().String(), owner: remote, link: l}
	near.other, far.other = far, near

	if !remote.enqueueAttempt(far) {
		return nil, ErrConnectorClosed
	}
	if !c.enqueueAttempt(near) {
		_ = far.Disconnect(DisconnectDisposed)
		return nil, ErrConnectorClosed
	}
	return near, nil
}

func (c *LocalConnector) Close(reason DisconnectReason) error {
	c.closePeers(reason)
	return nil
}

// localLink is the state shared by both ends of a local connection.
type localLink struct {
	mu     sync.Mutex
	closed bool
}

type localPeer struct {
	id     string
	secret string
	owner  *LocalConnector
	other  *localPeer
	link   *localLink
	// hungUp is set on the end that called Disconnect, guarded by link.mu.
	hungUp bool
}

func (p *localPeer) ID() string         { return p.id }
func (p *localPeer) Secret() string     { return p.secret }
func (p *localPeer) RemoteAddr() string { return LocalAddr }

// disconnecting reports whether this side hung up. The other side still
// receives what was sent before the disconnect.
func (p *localPeer) disconnecting() bool {
	p.link.mu.Lock()
	defer p.link.mu.Unlock()
	return p.hungUp
}

func (p *localPeer) Send(data []byte) error {
	p.link.mu.Lock()
	defer p.link.mu.Unlock()
	if p.link.closed {
		return ErrPeerDisconnected
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	p.other.owner.enqueueMessage(p.other, buf)
	return nil
}

func (p *localPeer) Disconnect(reason DisconnectReason) error {
	p.link.mu.Lock()
	if p.link.closed {
		p.link.mu.Unlock()
		return nil
	}
	p.link.closed = true
	p.hungUp = true
	p.link.mu.Unlock()

	p.owner.enqueueDisconnect(p, reason)
	p.other.owner.enqueueDisconnect(p.other, reason)
	return nil
}
