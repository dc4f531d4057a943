package client

import (
	"github.com/google/uuid"

	"github.com/dcrodman/warpsync/internal/connector"
	"github.com/dcrodman/warpsync/internal/protocol"
	"github.com/dcrodman/warpsync/internal/synchronizer"
)

// Authenticate introduces the client to the server, rebinding to the session
// of the last token if there is one.
func (c *Client) Authenticate() error {
	return c.send(&protocol.Authentication{Version: protocol.Version, Token: c.token})
}

func (c *Client) CreateAndJoinLobby(req *protocol.CreateAndJoinLobby) error {
	return c.send(req)
}

func (c *Client) JoinLobby(code, username string) error {
	return c.send(&protocol.JoinLobby{LobbyCode: code, Username: username})
}

func (c *Client) ListLobbies(filter *protocol.ListLobbies) error {
	if filter == nil {
		filter = &protocol.ListLobbies{}
	}
	return c.send(filter)
}

func (c *Client) ChangeUsername(username string) error {
	return c.send(&protocol.ChangeUsername{NewUsername: username})
}

func (c *Client) ChangeLobbyColor(color protocol.Color) error {
	return c.send(&protocol.ChangeLobbyColor{NewLobbyColor: &color})
}

func (c *Client) ChangeLobbyRules(req *protocol.ChangeLobbyRules) error {
	return c.send(req)
}

func (c *Client) KickUser(guid uuid.UUID, reason string) error {
	return c.send(&protocol.KickUser{UserGUID: guid.String(), Reason: reason})
}

func (c *Client) QuitLobby() error  { return c.send(&protocol.QuitLobby{}) }
func (c *Client) CloseLobby() error { return c.send(&protocol.CloseLobby{}) }

// StartGame asks the server to start the game after the given number of
// seconds. Restart and stop work the same way.
func (c *Client) StartGame(seconds float64) error {
	return c.send(&protocol.StartGame{Time: seconds})
}

func (c *Client) RestartGame(seconds float64) error {
	return c.send(&protocol.RestartGame{Time: seconds})
}

func (c *Client) StopGame(seconds float64) error {
	return c.send(&protocol.StopGame{Time: seconds})
}

func (c *Client) CancelStartGameTimer() error {
	return c.send(&protocol.CancelStartGameTimer{})
}

func (c *Client) CancelRestartStopGameTimers() error {
	return c.send(&protocol.CancelRestartStopGameTimers{})
}

// HitUser reports that the local user hit victim.
func (c *Client) HitUser(victim uuid.UUID, weapon string, damage float32, position, force protocol.Vector3) error {
	if c.user == nil {
		return ErrNotConnected
	}
	return c.send(&protocol.HitUser{
		Issuer:      c.user.GUID,
		Victim:      victim,
		WeaponName:  weapon,
		HitPosition: position,
		HitForce:    force,
		Damage:      damage,
	})
}

func (c *Client) registerHandlers() {
	handle(c, func(msg *protocol.AuthenticationAcknowledged) {
		c.token = msg.Token
		user := msg.User
		c.user = &user
	})

	handle(c, c.enterLobby)
	handle(c, func(msg *protocol.UserJoined) {
		if c.lobby == nil || c.memberIndex(msg.User.GUID) >= 0 {
			return
		}
		c.members = append(c.members, msg.User)
		c.lobby.UserCount = uint32(len(c.members))
	})
	handle(c, func(msg *protocol.UserLeft) {
		if c.lobby == nil {
			return
		}
		if i := c.memberIndex(msg.GUID); i >= 0 {
			c.members = append(c.members[:i], c.members[i+1:]...)
		}
		c.lobby.UserCount = uint32(len(c.members))
		delete(c.entities, msg.GUID)
	})
	handle(c, func(*protocol.LobbyLeft) { c.leaveLobby() })
	handle(c, func(msg *protocol.OwnerChanged) { c.owner = msg.OwnerGUID })
	handle(c, func(msg *protocol.LobbyRulesChanged) {
		if c.lobby == nil {
			return
		}
		lobby := msg.Lobby
		c.lobby = &lobby
	})
	handle(c, func(msg *protocol.LobbyList) { c.lobbyList = msg.Lobbies })
	handle(c, func(msg *protocol.UsernameChanged) {
		c.updateUser(msg.GUID, func(u *protocol.UserData) { u.Username = msg.NewUsername })
	})
	handle(c, func(msg *protocol.LobbyColorChanged) {
		c.updateUser(msg.GUID, func(u *protocol.UserData) { u.LobbyColor = msg.NewLobbyColor })
	})

	handle(c, func(msg *protocol.GameStartTimerStarted) { c.timers.Start = secondsPtr(msg.Time) })
	handle(c, func(msg *protocol.GameRestartTimerStarted) { c.timers.Restart = secondsPtr(msg.Time) })
	handle(c, func(msg *protocol.GameStopTimerStarted) { c.timers.Stop = secondsPtr(msg.Time) })
	handle(c, func(*protocol.GameStartTimerCanceled) { c.timers.Start = nil })
	handle(c, func(*protocol.GameRestartStopTimersCanceled) {
		c.timers.Restart = nil
		c.timers.Stop = nil
	})
	handle(c, func(*protocol.GameLoading) {
		c.setState(protocol.LobbyLoading)
		c.timers = Timers{}
		c.results = nil
		c.clearGame()
	})
	handle(c, func(msg *protocol.GameStarted) {
		c.setState(protocol.LobbyRunning)
		c.gameTime = msg.GameTime
	})
	handle(c, func(msg *protocol.GameEnded) {
		// The server reopens the lobby on its next tick.
		c.setState(protocol.LobbyOpen)
		c.timers = Timers{}
		c.results = msg
		c.clearGame()
	})
	handle(c, c.applyServerTick)
	handle(c, func(*protocol.UserKilled) {})

	failure[protocol.Error](c)
	failure[protocol.AuthenticationFailed](c)
	failure[protocol.CreateAndJoinLobbyFailed](c)
	failure[protocol.JoinLobbyFailed](c)
	failure[protocol.ListLobbiesFailed](c)
	failure[protocol.ChangeLobbyRulesFailed](c)
	failure[protocol.ChangeUsernameFailed](c)
	failure[protocol.ChangeLobbyColorFailed](c)
	failure[protocol.KickUserFailed](c)
	failure[protocol.QuitLobbyFailed](c)
	failure[protocol.CloseLobbyFailed](c)
	failure[protocol.StartGameFailed](c)
	failure[protocol.RestartGameFailed](c)
	failure[protocol.StopGameFailed](c)
	failure[protocol.CancelStartGameTimerFailed](c)
	failure[protocol.CancelRestartStopGameTimersFailed](c)
	failure[protocol.ClientTickFailed](c)
	failure[protocol.HitUserFailed](c)

	c.OnUnknownMessage = func(_ connector.Peer, messageType string) {
		c.logger.Warnf("server sent unknown message type %s", messageType)
	}
}

// handle registers apply for messages of type T and forwards them to the
// OnMessage hook afterwards.
func handle[T any](c *Client, apply func(msg *T)) {
	synchronizer.Register(c.Registry, func(_ connector.Peer, msg *T) error {
		apply(msg)
		if c.onMessage != nil {
			c.onMessage(msg)
		}
		return nil
	})
}

// failure registers a failure reply of type T.
func failure[T any](c *Client) {
	handle(c, func(msg *T) {
		c.lastFailure = msg
		c.logger.Debugf("server answered with %s: %+v", protocol.TypeNameOf[T](), msg)
	})
}

func (c *Client) setState(state protocol.LobbyState) {
	if c.lobby != nil {
		c.lobby.State = state
	}
}

// updateUser applies change to the local user and to its lobby entry.
func (c *Client) updateUser(guid uuid.UUID, change func(u *protocol.UserData)) {
	if c.user != nil && c.user.GUID == guid {
		change(c.user)
	}
	if i := c.memberIndex(guid); i >= 0 {
		change(&c.members[i])
	}
}
