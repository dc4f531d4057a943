package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// Path is the HTTP path the websocket endpoint is served on.
	Path = "/ws"

	DefaultTimeout = 30 * time.Second

	writeWait       = 10 * time.Second
	idlePingPeriod  = 30 * time.Second
	sendBufferSize  = 256
	minimumPingWait = 10 * time.Millisecond
	closeGrace      = time.Second
)

// RateLimit bounds how many messages a single peer may send.
type RateLimit struct {
	Enabled           bool
	MessagesPerSecond float64
	Burst             int
}

// Options configure a NetworkedConnector.
type Options struct {
	// Timeout is how long a peer may stay silent before it is considered
	// disconnected. Zero disables the timeout.
	Timeout time.Duration
	// ConnectionTimeout bounds the websocket handshake.
	ConnectionTimeout time.Duration
	// MaxMessageSize is the largest frame accepted from a peer; zero means
	// unlimited.
	MaxMessageSize int64
	RateLimit      RateLimit
	Logger         logrus.FieldLogger
}

// NetworkedConnector carries peers over websockets. Servers create one with
// Listen, clients with Dial. Reading and writing happen on per-peer
// goroutines that only ever push events into the queue.
type NetworkedConnector struct {
	base

	network   *Network
	rateLimit RateLimit
	maxSize   int64
	timeout   atomic.Int64

	upgrader *websocket.Upgrader
	listener net.Listener
	server   *http.Server
}

func newNetworkedConnector(network *Network, opts Options) *NetworkedConnector {
	c := &NetworkedConnector{
		network:   network,
		rateLimit: opts.RateLimit,
		maxSize:   opts.MaxMessageSize,
	}
	c.init(opts.Logger)
	c.timeout.Store(int64(opts.Timeout))
	return c
}

// Listen accepts websocket connections on address.
func Listen(network *Network, address string, opts Options) (*NetworkedConnector, error) {
	upgrader, _, err := network.acquire()
	if err != nil {
		return nil, err
	}

	ln, err := net.Listen("tcp", address)
	if err != nil {
		_ = network.Shutdown()
		return nil, fmt.Errorf("error listening on %s: %w", address, err)
	}

	c := newNetworkedConnector(network, opts)
	c.upgrader = upgrader
	c.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc(Path, c.handleUpgrade)
	c.server = &http.Server{Handler: mux, ReadHeaderTimeout: opts.ConnectionTimeout}

	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Errorf("websocket server on %s stopped: %v", ln.Addr(), err)
		}
	}()

	c.logger.Infof("waiting for connections on %v", ln.Addr())
	return c, nil
}

// Dial connects to the server at address ("host:port"). The returned peer is
// the server; it becomes connected on the next ProcessEvents.
func Dial(ctx context.Context, network *Network, address string, opts Options) (*NetworkedConnector, Peer, error) {
	dialer, err := network.dial(opts.ConnectionTimeout)
	if err != nil {
		return nil, nil, err
	}

	if opts.ConnectionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ConnectionTimeout)
		defer cancel()
	}

	conn, _, err := dialer.DialContext(ctx, "ws://"+address+Path, nil)
	if err != nil {
		_ = network.Shutdown()
		return nil, nil, fmt.Errorf("error connecting to %s: %w", address, err)
	}

	c := newNetworkedConnector(network, opts)
	peer := c.start(conn, address)
	if peer == nil {
		_ = network.Shutdown()
		return nil, nil, ErrConnectorClosed
	}
	return c, peer, nil
}

// Addr returns the address the connector listens on, or nil for clients.
func (c *NetworkedConnector) Addr() net.Addr {
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// SetTimeout changes how long peers may stay silent.
func (c *NetworkedConnector) SetTimeout(timeout time.Duration) {
	c.timeout.Store(int64(timeout))
}

func (c *NetworkedConnector) Timeout() time.Duration {
	return time.Duration(c.timeout.Load())
}

func (c *NetworkedConnector) pingPeriod() time.Duration {
	timeout := c.Timeout()
	if timeout <= 0 {
		return idlePingPeriod
	}
	if period := timeout / 2; period > minimumPingWait {
		return period
	}
	return minimumPingWait
}

func (c *NetworkedConnector) Close(reason DisconnectReason) error {
	if !c.closePeers(reason) {
		return nil
	}

	var err error
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if shutdownErr := c.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("error shutting down websocket server: %w", shutdownErr)
		}
	}
	if shutdownErr := c.network.Shutdown(); shutdownErr != nil && err == nil {
		err = shutdownErr
	}
	return err
}

func (c *NetworkedConnector) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if c.isClosed() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}

	// Upgrade replies to the client itself on failure.
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Debugf("failed to upgrade connection from %s: %v", r.RemoteAddr, err)
		return
	}
	c.start(conn, r.RemoteAddr)
}

func (c *NetworkedConnector) start(conn *websocket.Conn, remoteAddr string) *netPeer {
	p := &netPeer{
		id:         uuid.New().String(),
		secret:     uuid.New().String(),
		remoteAddr: remoteAddr,
		conn:       conn,
		owner:      c,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
		readDone:   make(chan struct{}),
	}
	if c.rateLimit.Enabled {
		p.limiter = rate.NewLimiter(rate.Limit(c.rateLimit.MessagesPerSecond), c.rateLimit.Burst)
	}

	if !c.enqueueAttempt(p) {
		closeMessage := websocket.FormatCloseMessage(websocket.CloseGoingAway, string(DisconnectDisposed))
		_ = conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait))
		_ = conn.Close()
		return nil
	}

	go p.writePump()
	go p.readPump()
	return p
}

type netPeer struct {
	id         string
	secret     string
	remoteAddr string
	conn       *websocket.Conn
	owner      *NetworkedConnector
	limiter    *rate.Limiter
	send       chan []byte
	done       chan struct{}
	readDone   chan struct{}

	mu     sync.Mutex
	closed bool
	// hangUp is the reason written in the close frame once the send buffer
	// is flushed. Empty when the connection was lost instead.
	hangUp DisconnectReason
}

func (p *netPeer) ID() string         { return p.id }
func (p *netPeer) Secret() string     { return p.secret }
func (p *netPeer) RemoteAddr() string { return p.remoteAddr }

func (p *netPeer) disconnecting() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hangUp != ""
}

// Send queues data for the write pump. A peer that does not keep up with its
// send buffer is kicked.
func (p *netPeer) Send(data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPeerDisconnected
	}
	select {
	case p.send <- buf:
		p.mu.Unlock()
		return nil
	default:
	}
	p.mu.Unlock()

	p.owner.logger.WithFields(logrus.Fields{"peer": p.id, "address": p.remoteAddr}).
		Warn("send buffer full")
	_ = p.Disconnect(DisconnectKicked)
	return ErrSendBufferFull
}

// Disconnect stops accepting messages for the peer. The write pump delivers
// what was already queued, then sends a close frame carrying reason and drops
// the connection.
func (p *netPeer) Disconnect(reason DisconnectReason) error {
	if reason == "" {
		reason = DisconnectUnknown
	}
	if !p.markClosed(reason) {
		return nil
	}
	p.owner.enqueueDisconnect(p, reason)
	return nil
}

// markClosed reports whether this call is the one that closed the peer.
func (p *netPeer) markClosed(hangUp DisconnectReason) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.closed = true
	p.hangUp = hangUp
	close(p.done)
	return true
}

func (p *netPeer) extendDeadline() {
	timeout := p.owner.Timeout()
	if timeout <= 0 {
		_ = p.conn.SetReadDeadline(time.Time{})
		return
	}
	_ = p.conn.SetReadDeadline(time.Now().Add(timeout))
}

func (p *netPeer) readPump() {
	reason := DisconnectDisconnected
	defer close(p.readDone)
	defer func() {
		if p.markClosed("") {
			_ = p.conn.Close()
			p.owner.enqueueDisconnect(p, reason)
		}
	}()

	if p.owner.maxSize > 0 {
		p.conn.SetReadLimit(p.owner.maxSize)
	}
	p.extendDeadline()
	p.conn.SetPongHandler(func(string) error {
		p.extendDeadline()
		return nil
	})

	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Text != "" {
				reason = ParseDisconnectReason(closeErr.Text)
			}
			return
		}
		p.extendDeadline()

		if p.limiter != nil && !p.limiter.Allow() {
			p.owner.logger.WithFields(logrus.Fields{"peer": p.id, "address": p.remoteAddr}).
				Warn("rate limit exceeded")
			_ = p.Disconnect(DisconnectKicked)
			return
		}

		p.owner.enqueueMessage(p, data)
	}
}

func (p *netPeer) writePump() {
	timer := time.NewTimer(p.owner.pingPeriod())
	defer timer.Stop()

	for {
		select {
		case <-p.done:
			p.flush()
			return
		case data := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				// The read pump notices the closed connection and reports it.
				_ = p.conn.Close()
				return
			}
		case <-timer.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = p.conn.Close()
				return
			}
			timer.Reset(p.owner.pingPeriod())
		}
	}
}

// flush writes what is left in the send buffer and the close frame, then
// closes the connection. Send refuses new data once the peer is closed, so
// the buffer only drains here.
func (p *netPeer) flush() {
	defer p.conn.Close()

	p.mu.Lock()
	reason := p.hangUp
	p.mu.Unlock()
	if reason == "" {
		return
	}

	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	for {
		select {
		case data := <-p.send:
			if err := p.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		default:
			closeMessage := websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(reason))
			if err := p.conn.WriteMessage(websocket.CloseMessage, closeMessage); err != nil {
				return
			}
			// Give the peer a moment to read everything and answer the close
			// frame before the connection goes away.
			select {
			case <-p.readDone:
			case <-time.After(closeGrace):
			}
			return
		}
	}
}
