package connector

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Network is the process wide handle on the websocket machinery shared by
// every networked connector. Initialize and Shutdown bracket the lifetime of
// the process; each networked connector holds a reference until it is closed.
type Network struct {
	mu       sync.Mutex
	refs     int
	upgrader *websocket.Upgrader
	dialer   *websocket.Dialer
}

func NewNetwork() *Network {
	return &Network{}
}

// Initialize acquires a reference, setting up the upgrader and dialer on first
// use.
func (n *Network) Initialize() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.refs == 0 {
		n.upgrader = &websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are game processes, not browsers.
			CheckOrigin: func(*http.Request) bool { return true },
		}
		n.dialer = &websocket.Dialer{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		}
	}
	n.refs++
}

// Shutdown releases a reference.
func (n *Network) Shutdown() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.refs == 0 {
		return ErrNetworkNotInitialized
	}
	n.refs--
	if n.refs == 0 {
		n.upgrader = nil
		n.dialer = nil
	}
	return nil
}

func (n *Network) IsInitialized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.refs > 0
}

// acquire takes a reference on behalf of a connector; the process must have
// initialized the network first.
func (n *Network) acquire() (*websocket.Upgrader, *websocket.Dialer, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.refs == 0 {
		return nil, nil, ErrNetworkNotInitialized
	}
	n.refs++
	return n.upgrader, n.dialer, nil
}

func (n *Network) dial(handshakeTimeout time.Duration) (*websocket.Dialer, error) {
	_, dialer, err := n.acquire()
	if err != nil {
		return nil, err
	}
	d := *dialer
	d.HandshakeTimeout = handshakeTimeout
	return &d, nil
}
