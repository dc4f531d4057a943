package server

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/warpsync/internal/connector"
	"github.com/dcrodman/warpsync/internal/core/auth"
	"github.com/dcrodman/warpsync/internal/entity"
	"github.com/dcrodman/warpsync/internal/lobby"
	"github.com/dcrodman/warpsync/internal/protocol"
	"github.com/dcrodman/warpsync/internal/synchronizer"
)

func (s *Server) registerHandlers() {
	r := s.Registry
	authenticated := s.requireAuthenticated
	inLobby := s.requireLobby
	owner := s.requireOwner

	synchronizer.Register(r, s.handleAuthentication)

	synchronizer.Register(r, s.handleCreateAndJoinLobby, authenticated, s.requireNoLobby)
	synchronizer.Register(r, s.handleJoinLobby, authenticated, s.requireNoLobby)
	synchronizer.Register(r, s.handleListLobbies, authenticated)
	synchronizer.Register(r, s.handleChangeUsername, authenticated)
	synchronizer.Register(r, s.handleChangeLobbyColor, authenticated)
	synchronizer.Register(r, s.handleQuitLobby, authenticated, inLobby)
	synchronizer.Register(r, s.handleChangeLobbyRules, authenticated, inLobby, owner)
	synchronizer.Register(r, s.handleKickUser, authenticated, inLobby, owner)
	synchronizer.Register(r, s.handleCloseLobby, authenticated, inLobby, owner)

	synchronizer.Register(r, s.handleStartGame, authenticated, inLobby, owner)
	synchronizer.Register(r, s.handleRestartGame, authenticated, inLobby, owner)
	synchronizer.Register(r, s.handleStopGame, authenticated, inLobby, owner)
	synchronizer.Register(r, s.handleCancelStartGameTimer, authenticated, inLobby, owner)
	synchronizer.Register(r, s.handleCancelRestartStopGameTimers, authenticated, inLobby, owner)
	synchronizer.Register(r, s.handleClientTick, authenticated, inLobby)
	synchronizer.Register(r, s.handleHitUser, authenticated, inLobby)
}

func (s *Server) requireAuthenticated(peer connector.Peer) error {
	if _, ok := s.users[peer.ID()]; !ok {
		return protocol.ContextError("peer is not authenticated")
	}
	return nil
}

func (s *Server) requireNoLobby(peer connector.Peer) error {
	if s.users[peer.ID()].IsInLobby() {
		return protocol.ContextError("user is already in a lobby")
	}
	return nil
}

func (s *Server) requireLobby(peer connector.Peer) error {
	if _, ok := s.lobbyOf(peer); !ok {
		return protocol.ContextError("user is not in a lobby")
	}
	return nil
}

func (s *Server) requireOwner(peer connector.Peer) error {
	l, _ := s.lobbyOf(peer)
	if !l.IsOwner(s.users[peer.ID()]) {
		return protocol.ContextError("user does not own lobby %s", l.Code())
	}
	return nil
}

func (s *Server) lobbyOf(peer connector.Peer) (*lobby.Lobby, bool) {
	user, ok := s.users[peer.ID()]
	if !ok || !user.IsInLobby() {
		return nil, false
	}
	return s.lobbies.Lookup(user.LobbyCode)
}

// mustLobby returns the lobby of a peer that passed requireLobby.
func (s *Server) mustLobby(peer connector.Peer) (*entity.User, *lobby.Lobby) {
	l, _ := s.lobbyOf(peer)
	return s.users[peer.ID()], l
}

func (s *Server) handleAuthentication(peer connector.Peer, msg *protocol.Authentication) error {
	fail := func(reason protocol.AuthenticationFailReason, message string) error {
		return protocol.Fail(&protocol.AuthenticationFailed{Message: message, Reason: reason})
	}

	switch {
	case !s.cfg.IsVersionSupported(msg.Version):
		return fail(protocol.AuthenticationFailNotSupportedVersion, "protocol version "+msg.Version+" is not supported")
	case msg.Token != "" && s.sessions.IsLive(msg.Token):
		return fail(protocol.AuthenticationFailTokenIsAlreadyInUse, "token is already in use")
	}
	if _, ok := s.users[peer.ID()]; ok {
		return fail(protocol.AuthenticationFailAlreadyAuthenticated, "peer is already authenticated")
	}

	user := entity.NewUser(peer.ID())
	if msg.Token != "" {
		profile, err := s.sessions.Rebind(msg.Token, peer.ID())
		switch {
		case err == nil:
			user.GUID = profile.UserGUID
			user.Username = profile.Username
			user.LobbyColor = protocol.Color(profile.LobbyColor)
			user.Token = msg.Token
		case errors.Is(err, auth.ErrTokenInUse):
			return fail(protocol.AuthenticationFailTokenIsAlreadyInUse, "token is already in use")
		}
	}
	if user.Token == "" {
		user.Token = s.sessions.Issue(peer.ID(), profileOf(user))
	}

	s.users[peer.ID()] = user
	s.logger.WithFields(logrus.Fields{"peer": peer.ID(), "user": user.GUID}).Info("user authenticated")

	return s.SendMessage(peer, &protocol.AuthenticationAcknowledged{Token: user.Token, User: user.View()})
}

func profileOf(user *entity.User) auth.Profile {
	return auth.Profile{UserGUID: user.GUID, Username: user.Username, LobbyColor: uint32(user.LobbyColor)}
}

// rename changes the username and keeps the session profile in sync.
func (s *Server) rename(user *entity.User, username string) {
	user.Username = protocol.NormalizeName(username)
	s.sessions.Update(user.Token, profileOf(user))
}

func (s *Server) handleCreateAndJoinLobby(peer connector.Peer, msg *protocol.CreateAndJoinLobby) error {
	user := s.users[peer.ID()]
	previous := user.Username
	s.rename(user, msg.Username)

	if _, err := s.lobbies.Create(user, msg); err != nil {
		s.rename(user, previous)
		return err
	}
	return nil
}

func (s *Server) handleJoinLobby(peer connector.Peer, msg *protocol.JoinLobby) error {
	user := s.users[peer.ID()]
	previous := user.Username
	s.rename(user, msg.Username)

	if _, err := s.lobbies.Join(msg.LobbyCode, user); err != nil {
		s.rename(user, previous)
		return err
	}
	return nil
}

func (s *Server) handleListLobbies(peer connector.Peer, msg *protocol.ListLobbies) error {
	return s.SendMessage(peer, &protocol.LobbyList{Lobbies: s.lobbies.List(msg)})
}

func (s *Server) handleChangeUsername(peer connector.Peer, msg *protocol.ChangeUsername) error {
	user := s.users[peer.ID()]
	s.rename(user, msg.NewUsername)
	s.notifyLobbyOrSelf(user, &protocol.UsernameChanged{GUID: user.GUID, NewUsername: user.Username})
	return nil
}

func (s *Server) handleChangeLobbyColor(peer connector.Peer, msg *protocol.ChangeLobbyColor) error {
	user := s.users[peer.ID()]
	user.LobbyColor = *msg.NewLobbyColor
	s.sessions.Update(user.Token, profileOf(user))
	s.notifyLobbyOrSelf(user, &protocol.LobbyColorChanged{GUID: user.GUID, NewLobbyColor: user.LobbyColor})
	return nil
}

// notifyLobbyOrSelf broadcasts msg to the user's lobby, or sends it to the
// user alone when it is in no lobby.
func (s *Server) notifyLobbyOrSelf(user *entity.User, msg interface{}) {
	if l, ok := s.lobbies.Lookup(user.LobbyCode); ok {
		l.Broadcast(msg)
		return
	}
	s.Notify(user, msg)
}

func (s *Server) handleQuitLobby(peer connector.Peer, _ *protocol.QuitLobby) error {
	user, l := s.mustLobby(peer)
	return l.Leave(user, protocol.LeaveQuit, "")
}

func (s *Server) handleChangeLobbyRules(peer connector.Peer, msg *protocol.ChangeLobbyRules) error {
	_, l := s.mustLobby(peer)
	return l.ChangeRules(msg)
}

func (s *Server) handleKickUser(peer connector.Peer, msg *protocol.KickUser) error {
	user, l := s.mustLobby(peer)
	return l.Kick(user, msg.Target(), msg.Reason)
}

func (s *Server) handleCloseLobby(peer connector.Peer, _ *protocol.CloseLobby) error {
	_, l := s.mustLobby(peer)
	l.Close()
	return nil
}

func (s *Server) handleStartGame(peer connector.Peer, msg *protocol.StartGame) error {
	_, l := s.mustLobby(peer)
	return l.StartGame(msg.Time)
}

func (s *Server) handleRestartGame(peer connector.Peer, msg *protocol.RestartGame) error {
	_, l := s.mustLobby(peer)
	return l.RestartGame(msg.Time)
}

func (s *Server) handleStopGame(peer connector.Peer, msg *protocol.StopGame) error {
	_, l := s.mustLobby(peer)
	return l.StopGame(msg.Time)
}

func (s *Server) handleCancelStartGameTimer(peer connector.Peer, _ *protocol.CancelStartGameTimer) error {
	_, l := s.mustLobby(peer)
	return l.CancelStartGameTimer()
}

func (s *Server) handleCancelRestartStopGameTimers(peer connector.Peer, _ *protocol.CancelRestartStopGameTimers) error {
	_, l := s.mustLobby(peer)
	return l.CancelRestartStopGameTimers()
}

func (s *Server) handleClientTick(peer connector.Peer, msg *protocol.ClientTick) error {
	user, l := s.mustLobby(peer)
	return l.ApplyClientTick(user, msg)
}

func (s *Server) handleHitUser(peer connector.Peer, msg *protocol.HitUser) error {
	user, l := s.mustLobby(peer)
	return l.Hit(user, msg)
}
