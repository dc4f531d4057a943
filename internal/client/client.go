// Package client is the client side of a session. It sends requests to the
// server, mirrors the state of the lobby the user is in and reports the local
// user's input once per frame.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/warpsync/internal/connector"
	"github.com/dcrodman/warpsync/internal/core"
	"github.com/dcrodman/warpsync/internal/entity"
	"github.com/dcrodman/warpsync/internal/protocol"
	"github.com/dcrodman/warpsync/internal/synchronizer"
)

var (
	ErrNotConnected     = errors.New("not connected to a server")
	ErrAlreadyConnected = errors.New("already connected to a server")
)

// LocalServer is a server running in the same process.
type LocalServer interface {
	ConnectLocal(client *connector.LocalConnector) (connector.Peer, error)
}

// Options wire a Client to its collaborators.
type Options struct {
	Config *core.Config
	Logger logrus.FieldLogger
	// OnMessage, when set, is called with every message received from the
	// server after the mirrored state was updated.
	OnMessage func(msg interface{})
	// OnDisconnected, when set, is called once the server connection is gone.
	OnDisconnected func(reason connector.DisconnectReason)
}

// Client is the client synchronizer.
type Client struct {
	*synchronizer.Synchronizer

	cfg            *core.Config
	logger         logrus.FieldLogger
	onMessage      func(msg interface{})
	onDisconnected func(reason connector.DisconnectReason)

	server           connector.Peer
	isConnected      bool
	disconnectReason connector.DisconnectReason

	token string
	user  *protocol.UserData

	// Mirror of the lobby the user is in; nil while in no lobby.
	lobby   *protocol.LobbyView
	owner   uuid.UUID
	members []protocol.UserData
	timers  Timers

	entities map[uuid.UUID]*entity.Entity
	self     *entity.Entity
	sent     protocol.EntityDelta
	gameTime float64
	results  *protocol.GameEnded

	lobbyList   []protocol.LobbyView
	lastFailure interface{}
}

// Timers are the countdowns the server announced for the current lobby, in
// seconds. Nil means no timer is pending.
type Timers struct {
	Start   *float64
	Restart *float64
	Stop    *float64
}

func New(opts Options) *Client {
	c := &Client{
		cfg:            opts.Config,
		logger:         opts.Logger,
		onMessage:      opts.OnMessage,
		onDisconnected: opts.OnDisconnected,
		entities:       make(map[uuid.UUID]*entity.Entity),
	}
	c.Synchronizer = synchronizer.New(c, synchronizer.Options{
		Logger:               opts.Logger,
		CompressionThreshold: opts.Config.CompressionThreshold,
		MessageLogging:       opts.Config.Debugging.MessageLoggingEnabled,
		SilentRejections:     true,
	})
	c.registerHandlers()
	return c
}

// ConnectLocal connects to a server in the same process. The connection is
// established on the next Tick.
func (c *Client) ConnectLocal(server LocalServer) error {
	if c.server != nil {
		return ErrAlreadyConnected
	}
	local := connector.NewLocalConnector(c.logger)
	peer, err := server.ConnectLocal(local)
	if err != nil {
		return fmt.Errorf("error connecting to local server: %w", err)
	}
	c.AddConnector(local)
	c.server = peer
	return nil
}

// Dial connects to the server at address ("host:port").
func (c *Client) Dial(ctx context.Context, network *connector.Network, address string) error {
	if c.server != nil {
		return ErrAlreadyConnected
	}
	networked, peer, err := connector.Dial(ctx, network, address, connector.Options{
		Timeout:           c.cfg.PeerTimeout,
		ConnectionTimeout: c.cfg.ConnectionTimeout,
		Logger:            c.logger,
	})
	if err != nil {
		return err
	}
	c.AddConnector(networked)
	c.server = peer
	return nil
}

// Disconnect leaves the server.
func (c *Client) Disconnect() error {
	if c.server == nil {
		return ErrNotConnected
	}
	return c.server.Disconnect(connector.DisconnectDisconnected)
}

func (c *Client) PeerConnected(peer connector.Peer) {
	c.isConnected = true
	c.logger.WithField("server", peer.RemoteAddr()).Info("connected to server")
}

func (c *Client) PeerDisconnected(peer connector.Peer, reason connector.DisconnectReason) {
	c.isConnected = false
	c.disconnectReason = reason
	c.server = nil
	c.user = nil
	c.leaveLobby()
	c.logger.WithFields(logrus.Fields{"server": peer.RemoteAddr(), "reason": reason}).Info("disconnected from server")

	if c.onDisconnected != nil {
		c.onDisconnected(reason)
	}
}

// Tick handles everything the server sent since the last call and then
// reports what changed about the local user.
func (c *Client) Tick() error {
	c.ProcessEvents()
	return c.sendClientTick()
}

// Close disconnects from the server and releases every connector.
func (c *Client) Close() error {
	return c.Synchronizer.Close(connector.DisconnectDisconnected)
}

func (c *Client) IsConnected() bool                            { return c.isConnected }
func (c *Client) DisconnectReason() connector.DisconnectReason { return c.disconnectReason }
func (c *Client) IsAuthenticated() bool                        { return c.user != nil }
func (c *Client) Token() string                                { return c.token }
func (c *Client) IsInLobby() bool                              { return c.lobby != nil }
func (c *Client) GameTime() float64                            { return c.gameTime }
func (c *Client) Timers() Timers                               { return c.timers }
func (c *Client) LobbyList() []protocol.LobbyView              { return c.lobbyList }

// LastFailure is the most recent failure or error the server answered with.
func (c *Client) LastFailure() interface{} { return c.lastFailure }

// User is the authenticated user, nil before authentication.
func (c *Client) User() *protocol.UserData {
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// Lobby is the lobby the user is in, nil while in none.
func (c *Client) Lobby() *protocol.LobbyView {
	if c.lobby == nil {
		return nil
	}
	l := *c.lobby
	return &l
}

func (c *Client) Owner() uuid.UUID { return c.owner }

// IsOwner reports whether the local user owns its lobby.
func (c *Client) IsOwner() bool {
	return c.user != nil && c.lobby != nil && c.owner == c.user.GUID
}

// Members lists the users of the lobby in join order.
func (c *Client) Members() []protocol.UserData {
	return append([]protocol.UserData(nil), c.members...)
}

// Entity returns the mirrored entity with the given guid.
func (c *Client) Entity(guid uuid.UUID) (*entity.Entity, bool) {
	e, ok := c.entities[guid]
	return e, ok
}

func (c *Client) EntityCount() int { return len(c.entities) }

// Self is the local user's entity. The game writes its input into it with
// SetFromClient and the next Tick reports what changed. Nil while in no
// lobby.
func (c *Client) Self() *entity.Entity { return c.self }

// RequestResync asks the server for the full state of every entity.
func (c *Client) RequestResync() {
	if c.self != nil {
		c.self.IsResyncRequested = true
	}
}

// Results are those of the last game that ended in the current lobby.
func (c *Client) Results() *protocol.GameEnded { return c.results }

func (c *Client) send(msg interface{}) error {
	if c.server == nil {
		return ErrNotConnected
	}
	return c.SendMessage(c.server, msg)
}

// sendClientTick reports the client owned fields of the local user that
// changed since the last report.
func (c *Client) sendClientTick() error {
	if c.self == nil || c.server == nil || c.lobby == nil || c.lobby.State != protocol.LobbyRunning {
		return nil
	}

	cur := c.self.Data()
	delta := protocol.EntityDelta{GUID: c.self.GUID}
	if *cur.Position != *c.sent.Position {
		delta.Position = cur.Position
	}
	if *cur.Rotation != *c.sent.Rotation {
		delta.Rotation = cur.Rotation
	}
	if *cur.Velocity != *c.sent.Velocity {
		delta.Velocity = cur.Velocity
	}
	if *cur.AngularVelocity != *c.sent.AngularVelocity {
		delta.AngularVelocity = cur.AngularVelocity
	}
	if !sameActions(*cur.Actions, *c.sent.Actions) {
		delta.Actions = cur.Actions
	}
	if c.self.IsResyncRequested {
		delta.IsResyncRequested = cur.IsResyncRequested
		c.self.IsResyncRequested = false
	}
	if delta.IsEmpty() {
		return nil
	}

	c.sent = cur
	return c.send(&protocol.ClientTick{Entities: []protocol.EntityDelta{delta}})
}

func sameActions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// enterLobby resets the mirror for a lobby the user just joined.
func (c *Client) enterLobby(msg *protocol.LobbyJoinAcknowledged) {
	c.leaveLobby()
	lobby := msg.Lobby
	c.lobby = &lobby
	c.owner = msg.OwnerGUID
	c.members = append([]protocol.UserData(nil), msg.Users...)
	c.resetSelf()
}

func (c *Client) leaveLobby() {
	c.lobby = nil
	c.owner = uuid.Nil
	c.members = nil
	c.timers = Timers{}
	c.results = nil
	c.self = nil
	c.clearGame()
}

// clearGame forgets the entities of the last game.
func (c *Client) clearGame() {
	c.entities = make(map[uuid.UUID]*entity.Entity)
	c.gameTime = 0
	if c.self != nil {
		c.resetSelf()
	}
}

func (c *Client) resetSelf() {
	if c.user == nil {
		return
	}
	c.self = entity.New(entity.UserEntityType)
	c.self.GUID = c.user.GUID
	c.sent = c.self.Data()
	c.entities[c.self.GUID] = c.self
}

// applyServerTick merges server deltas into the mirror.
func (c *Client) applyServerTick(msg *protocol.ServerTick) {
	c.gameTime = msg.GameTime
	for i := range msg.Entities {
		delta := &msg.Entities[i]
		e, ok := c.entities[delta.GUID]
		if !ok {
			e = entity.New("")
			e.GUID = delta.GUID
			c.entities[delta.GUID] = e
		}
		e.ApplyDelta(delta, false)

		// A resync of the local user moves it; that is not input to report.
		if e == c.self {
			c.sent = c.self.Data()
		}
	}
	for _, guid := range msg.RemovedEntities {
		if c.self != nil && guid == c.self.GUID {
			continue
		}
		delete(c.entities, guid)
	}
}

func (c *Client) memberIndex(guid uuid.UUID) int {
	for i := range c.members {
		if c.members[i].GUID == guid {
			return i
		}
	}
	return -1
}

func secondsPtr(seconds float64) *float64 { return &seconds }
