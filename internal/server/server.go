// Package server is the authoritative side of a session. It authenticates
// peers, runs their lobbies and games and replicates game state back to them
// once per tick.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/warpsync/internal/connector"
	"github.com/dcrodman/warpsync/internal/core"
	"github.com/dcrodman/warpsync/internal/core/auth"
	"github.com/dcrodman/warpsync/internal/core/bans"
	"github.com/dcrodman/warpsync/internal/entity"
	"github.com/dcrodman/warpsync/internal/gamemode"
	"github.com/dcrodman/warpsync/internal/lobby"
	"github.com/dcrodman/warpsync/internal/protocol"
	"github.com/dcrodman/warpsync/internal/synchronizer"
)

// Options wire a Server to its collaborators.
type Options struct {
	Config    *core.Config
	Logger    logrus.FieldLogger
	GameModes *gamemode.Registry
	// Bans is optional.
	Bans *bans.List
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Server is the server synchronizer.
type Server struct {
	*synchronizer.Synchronizer

	cfg      *core.Config
	logger   logrus.FieldLogger
	clock    func() time.Time
	sessions *auth.Sessions
	bans     *bans.List
	lobbies  *lobby.Manager

	// Connected peers and the users they authenticated as, by peer id.
	peers map[string]connector.Peer
	users map[string]*entity.User

	local     *connector.LocalConnector
	networked *connector.NetworkedConnector
}

func New(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	s := &Server{
		cfg:      opts.Config,
		logger:   opts.Logger,
		clock:    opts.Clock,
		sessions: auth.NewSessions(opts.Config.TokenTTL),
		bans:     opts.Bans,
		peers:    make(map[string]connector.Peer),
		users:    make(map[string]*entity.User),
	}
	s.Synchronizer = synchronizer.New(s, synchronizer.Options{
		Logger:               opts.Logger,
		CompressionThreshold: opts.Config.CompressionThreshold,
		MaxProtocolErrors:    opts.Config.MaxProtocolErrors,
		MessageLogging:       opts.Config.Debugging.MessageLoggingEnabled,
	})
	s.lobbies = lobby.NewManager(lobby.Options{
		Logger:              opts.Logger,
		Notifier:            s,
		GameModes:           opts.GameModes,
		DefaultMaxUserCount: uint32(opts.Config.Lobby.DefaultMaxUserCount),
		AutoStartDelay:      opts.Config.Lobby.AutoStartDelay,
		ResyncInterval:      opts.Config.Replication.ResyncInterval,
		Clock:               opts.Clock,
	})
	s.registerHandlers()
	return s
}

// Lobbies exposes the lobby manager, mostly for operator tooling.
func (s *Server) Lobbies() *lobby.Manager { return s.lobbies }

// User returns the user authenticated on the peer with the given id.
func (s *Server) User(peerID string) (*entity.User, bool) {
	u, ok := s.users[peerID]
	return u, ok
}

// Listen starts accepting networked peers on the configured address.
func (s *Server) Listen(network *connector.Network) error {
	c, err := connector.Listen(network, s.cfg.ListenAddress(), connector.Options{
		Timeout:           s.cfg.PeerTimeout,
		ConnectionTimeout: s.cfg.ConnectionTimeout,
		RateLimit: connector.RateLimit{
			Enabled:           s.cfg.RateLimit.Enabled,
			MessagesPerSecond: s.cfg.RateLimit.MessagesPerSecond,
			Burst:             s.cfg.RateLimit.Burst,
		},
		Logger: s.logger,
	})
	if err != nil {
		return fmt.Errorf("error starting networked connector: %w", err)
	}
	c.SetConnectionPolicy(s.connectionPolicy)
	s.networked = c
	s.AddConnector(c)
	return nil
}

// Addr is the address networked peers connect to, nil before Listen.
func (s *Server) Addr() net.Addr {
	if s.networked == nil {
		return nil
	}
	return s.networked.Addr()
}

// ConnectLocal links an in-process client connector to the server. The
// returned peer is the client's handle on the server.
func (s *Server) ConnectLocal(client *connector.LocalConnector) (connector.Peer, error) {
	if s.local == nil {
		s.local = connector.NewLocalConnector(s.logger)
		s.local.SetConnectionPolicy(s.connectionPolicy)
		s.AddConnector(s.local)
	}
	return client.Connect(s.local)
}

// connectionPolicy turns away banned peers and peers beyond the connection
// limit.
func (s *Server) connectionPolicy(peer connector.Peer) (bool, connector.DisconnectReason) {
	if s.bans != nil {
		if entry, banned := s.bans.Match(peer.ID(), host(peer.RemoteAddr())); banned {
			s.logger.WithFields(logrus.Fields{"peer": peer.ID(), "pattern": entry.Pattern}).
				Info("rejected banned peer")
			return false, connector.DisconnectBanned
		}
	}
	if s.cfg.MaxConnections > 0 && len(s.peers) >= s.cfg.MaxConnections {
		return false, connector.DisconnectServerIsFull
	}
	return true, ""
}

func host(addr string) string {
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}

// Kick disconnects the peer of a user.
func (s *Server) Kick(user *entity.User, reason connector.DisconnectReason) error {
	peer, ok := s.peers[user.PeerID]
	if !ok {
		return fmt.Errorf("error kicking %s: %w", user.GUID, connector.ErrPeerDisconnected)
	}
	return peer.Disconnect(reason)
}

// Ban adds a ban and disconnects every connected peer it matches.
func (s *Server) Ban(pattern, reason string, duration time.Duration) error {
	if s.bans == nil {
		return errors.New("no ban list configured")
	}
	if _, err := s.bans.Add(pattern, reason, duration); err != nil {
		return err
	}
	for _, peer := range s.peers {
		if _, banned := s.bans.Match(peer.ID(), host(peer.RemoteAddr())); banned {
			_ = peer.Disconnect(connector.DisconnectBanned)
		}
	}
	return nil
}

func (s *Server) PeerConnected(peer connector.Peer) {
	s.peers[peer.ID()] = peer
}

func (s *Server) PeerDisconnected(peer connector.Peer, reason connector.DisconnectReason) {
	delete(s.peers, peer.ID())

	user, ok := s.users[peer.ID()]
	if !ok {
		return
	}
	delete(s.users, peer.ID())

	if l, ok := s.lobbies.Lookup(user.LobbyCode); ok {
		_ = l.Leave(user, leaveReason(reason), "")
	}
	s.sessions.Release(user.Token)
}

func leaveReason(reason connector.DisconnectReason) protocol.LeaveReason {
	switch reason {
	case connector.DisconnectKicked, connector.DisconnectBanned:
		return protocol.LeaveKicked
	case connector.DisconnectLobbyClosed, connector.DisconnectDisposed:
		return protocol.LeaveLobbyClosed
	default:
		return protocol.LeaveDisconnected
	}
}

// Notify sends msg to the peer of user, if it is still connected.
func (s *Server) Notify(user *entity.User, msg interface{}) {
	peer, ok := s.peers[user.PeerID]
	if !ok {
		return
	}
	if err := s.SendMessage(peer, msg); err != nil {
		s.logger.WithField("peer", peer.ID()).Warnf("error notifying user: %v", err)
	}
}

// Tick runs one server tick: every queued event is handled, lobbies advance
// and running games replicate their state.
func (s *Server) Tick(dt time.Duration) {
	s.ProcessEvents()
	s.lobbies.Update(dt)
	s.lobbies.Replicate(dt)
}

// Run ticks at the configured rate until ctx is canceled, then disconnects
// every peer.
func (s *Server) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval())
	defer ticker.Stop()
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Errorf("error shutting down: %v", err)
		}
	}()

	last := s.clock()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			now := s.clock()
			s.Tick(now.Sub(last))
			last = now
		}
	}
}

// Close disconnects every peer and closes every lobby.
func (s *Server) Close() error {
	err := s.Synchronizer.Close(connector.DisconnectDisposed)
	s.lobbies.CloseAll()
	return err
}
