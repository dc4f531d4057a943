// Package lobby implements lobbies: named groups of users that configure,
// start and play games together. Lobbies are not safe for concurrent use;
// the server drives them from its single tick loop.
package lobby

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/warpsync/internal/entity"
	"github.com/dcrodman/warpsync/internal/gamemode"
	"github.com/dcrodman/warpsync/internal/protocol"
)

var (
	ErrUserNotFound   = errors.New("user is not a member of the lobby")
	ErrGameNotRunning = errors.New("game is not running")
	ErrLobbyClosed    = errors.New("lobby is closed")
)

// Notifier delivers messages to users.
type Notifier interface {
	Notify(user *entity.User, msg interface{})
}

// Lobby is a group of users sharing one game.
type Lobby struct {
	logger   logrus.FieldLogger
	notifier Notifier
	modes    *gamemode.Registry
	clock    func() time.Time

	code                        string
	name                        string
	isPrivate                   bool
	gameModeName                string
	minUserCount                uint32
	maxUserCount                uint32
	isStartingGameAutomatically bool
	gameModeRules               map[string]interface{}
	autoStartDelay              time.Duration

	owner *entity.User
	// Members in join order.
	users []*entity.User
	// Entities spawned by the game mode, in creation order.
	entities []*entity.Entity

	state    protocol.LobbyState
	closed   bool
	mode     gamemode.GameMode
	resource gamemode.Resource
	gameTime time.Duration

	// Scheduled fire times; zero when not scheduled.
	startAt   time.Time
	restartAt time.Time
	stopAt    time.Time
	autoStart bool

	resyncInterval time.Duration
	observers      map[uuid.UUID]*entity.Observer
}

// Code is the unique code users join the lobby with.
func (l *Lobby) Code() string { return l.code }

func (l *Lobby) Name() string { return l.name }

func (l *Lobby) IsPrivate() bool { return l.isPrivate }

func (l *Lobby) GameModeName() string { return l.gameModeName }

func (l *Lobby) State() protocol.LobbyState { return l.state }

func (l *Lobby) IsClosed() bool { return l.closed }

func (l *Lobby) Owner() *entity.User { return l.owner }

func (l *Lobby) IsOwner(user *entity.User) bool {
	return l.owner != nil && l.owner.GUID == user.GUID
}

func (l *Lobby) UserCount() int { return len(l.users) }

func (l *Lobby) IsFull() bool { return uint32(len(l.users)) >= l.maxUserCount }

// IsRunning reports whether a game mode instance exists.
func (l *Lobby) IsRunning() bool {
	return l.state == protocol.LobbyLoading || l.state == protocol.LobbyRunning
}

func (l *Lobby) GameModeRules() map[string]interface{} {
	rules := make(map[string]interface{}, len(l.gameModeRules))
	for k, v := range l.gameModeRules {
		rules[k] = v
	}
	return rules
}

// Users returns the members in join order.
func (l *Lobby) Users() []*entity.User {
	return append([]*entity.User(nil), l.users...)
}

func (l *Lobby) User(guid uuid.UUID) (*entity.User, bool) {
	for _, u := range l.users {
		if u.GUID == guid {
			return u, true
		}
	}
	return nil, false
}

// View is the public description of the lobby.
func (l *Lobby) View() protocol.LobbyView {
	return protocol.LobbyView{
		Code:                        l.code,
		Name:                        l.name,
		IsPrivate:                   l.isPrivate,
		GameMode:                    l.gameModeName,
		MinUserCount:                l.minUserCount,
		MaxUserCount:                l.maxUserCount,
		UserCount:                   uint32(len(l.users)),
		IsStartingGameAutomatically: l.isStartingGameAutomatically,
		GameModeRules:               l.GameModeRules(),
		State:                       l.state,
	}
}

// Broadcast sends msg to every member.
func (l *Lobby) Broadcast(msg interface{}) {
	for _, u := range l.users {
		l.notifier.Notify(u, msg)
	}
}

func (l *Lobby) broadcastExcept(except *entity.User, msg interface{}) {
	for _, u := range l.users {
		if u.GUID != except.GUID {
			l.notifier.Notify(u, msg)
		}
	}
}

// Join adds user to the lobby. The user receives the lobby state and the
// other members are told about the newcomer.
func (l *Lobby) Join(user *entity.User) error {
	if l.closed {
		return fmt.Errorf("error joining lobby %s: %w", l.code, ErrLobbyClosed)
	}
	if l.IsFull() {
		return protocol.Fail(&protocol.JoinLobbyFailed{
			Message: fmt.Sprintf("lobby %s is full", l.code),
			Reason:  protocol.JoinLobbyFailFull,
		})
	}

	l.users = append(l.users, user)
	user.LobbyCode = l.code
	if l.owner == nil {
		l.owner = user
	}
	l.logger.WithField("user", user.GUID).Info("user joined")

	l.notifier.Notify(user, &protocol.LobbyJoinAcknowledged{
		Lobby:     l.View(),
		OwnerGUID: l.owner.GUID,
		UserGUID:  user.GUID,
		Users:     l.userViews(),
	})
	l.broadcastExcept(user, &protocol.UserJoined{User: user.View()})

	if l.mode != nil {
		l.mode.OnUserJoined(user)
		if l.state == protocol.LobbyRunning {
			l.spawn(user)
		}
	}
	if uint32(len(l.users)) == l.minUserCount {
		l.checkAutoStart()
	}
	return nil
}

// Leave removes user from the lobby. Ownership passes to the earliest
// joined remaining member; the last member leaving closes the lobby.
func (l *Lobby) Leave(user *entity.User, reason protocol.LeaveReason, message string) error {
	i := l.indexOf(user.GUID)
	if i < 0 {
		return fmt.Errorf("error removing %s from lobby %s: %w", user.GUID, l.code, ErrUserNotFound)
	}

	l.users = append(l.users[:i], l.users[i+1:]...)
	user.LobbyCode = ""
	delete(l.observers, user.GUID)
	l.logger.WithFields(logrus.Fields{"user": user.GUID, "reason": reason}).Info("user left")

	l.notifier.Notify(user, &protocol.LobbyLeft{Reason: reason, Message: message})
	l.Broadcast(&protocol.UserLeft{GUID: user.GUID, Reason: reason})

	if l.mode != nil {
		l.mode.OnUserLeft(user)
	}

	if len(l.users) == 0 {
		l.close()
		return nil
	}

	if l.owner.GUID == user.GUID {
		l.owner = l.users[0]
		l.logger.WithField("owner", l.owner.GUID).Info("ownership transferred")
		l.Broadcast(&protocol.OwnerChanged{OwnerGUID: l.owner.GUID})
	}

	if l.autoStart && !l.startAt.IsZero() && uint32(len(l.users)) < l.minUserCount {
		l.cancelStart()
	}
	return nil
}

// Kick removes the member identified by guid on behalf of the owner.
func (l *Lobby) Kick(owner *entity.User, guid uuid.UUID, reason string) error {
	target, ok := l.User(guid)
	if !ok || target.GUID == owner.GUID {
		return protocol.Fail(&protocol.KickUserFailed{
			Message: fmt.Sprintf("%s cannot be kicked", guid),
			Reason:  protocol.KickUserFailInvalidUserGUID,
		})
	}
	if err := l.Leave(target, protocol.LeaveKicked, reason); err != nil {
		return protocol.Fail(&protocol.KickUserFailed{
			Message: err.Error(),
			Reason:  protocol.KickUserFailFailedExecution,
		})
	}
	return nil
}

// Close evicts every member and shuts the game mode down.
func (l *Lobby) Close() {
	for len(l.users) > 0 {
		user := l.users[0]
		l.users = l.users[1:]
		user.LobbyCode = ""
		l.notifier.Notify(user, &protocol.LobbyLeft{Reason: protocol.LeaveLobbyClosed})
		if l.mode != nil {
			l.mode.OnUserLeft(user)
		}
	}
	l.close()
}

func (l *Lobby) close() {
	if l.closed {
		return
	}
	l.closed = true
	l.owner = nil
	l.startAt, l.restartAt, l.stopAt = time.Time{}, time.Time{}, time.Time{}
	if l.mode != nil {
		l.mode.OnClosed()
		l.mode = nil
	}
	l.logger.Info("lobby closed")
}

// ChangeRules applies the rule changes requested by the owner and tells the
// members about the result.
func (l *Lobby) ChangeRules(req *protocol.ChangeLobbyRules) error {
	fail := func(reason protocol.ChangeLobbyRulesFailReason, format string, args ...interface{}) error {
		return protocol.Fail(&protocol.ChangeLobbyRulesFailed{Message: fmt.Sprintf(format, args...), Reason: reason})
	}

	minUserCount, maxUserCount := l.minUserCount, l.maxUserCount
	if req.MinUserCount != nil {
		minUserCount = *req.MinUserCount
	}
	if req.MaxUserCount != nil {
		maxUserCount = *req.MaxUserCount
	}

	switch {
	case req.GameMode != nil && !l.modes.IsAvailable(*req.GameMode):
		return fail(protocol.ChangeLobbyRulesFailGameModeIsNotAvailable, "game mode %s is not available", *req.GameMode)
	case minUserCount > maxUserCount:
		return fail(protocol.ChangeLobbyRulesFailMinimalUserCountIsBiggerThanMaximalUserCount,
			"minimal user count %d is bigger than maximal user count %d", minUserCount, maxUserCount)
	case maxUserCount < uint32(len(l.users)):
		return fail(protocol.ChangeLobbyRulesFailMaximalUserCountIsSmallerThanUserCount,
			"maximal user count %d is smaller than the user count %d", maxUserCount, len(l.users))
	case l.state != protocol.LobbyOpen:
		return fail(protocol.ChangeLobbyRulesFailGameModeIsRunning, "rules cannot change while a game is %s", l.state)
	}

	if req.Name != nil {
		l.name = protocol.NormalizeName(*req.Name)
	}
	if req.IsPrivate != nil {
		l.isPrivate = *req.IsPrivate
	}
	if req.GameMode != nil {
		l.gameModeName = *req.GameMode
	}
	if req.IsStartingGameAutomatically != nil {
		l.isStartingGameAutomatically = *req.IsStartingGameAutomatically
	}
	if req.GameModeRules != nil {
		l.gameModeRules = copyRules(req.GameModeRules)
	}
	l.minUserCount, l.maxUserCount = minUserCount, maxUserCount

	l.logger.Info("rules changed")
	l.Broadcast(&protocol.LobbyRulesChanged{Lobby: l.View()})
	l.checkAutoStart()
	return nil
}

func (l *Lobby) userViews() []protocol.UserData {
	views := make([]protocol.UserData, 0, len(l.users))
	for _, u := range l.users {
		views = append(views, u.View())
	}
	return views
}

func (l *Lobby) indexOf(guid uuid.UUID) int {
	for i, u := range l.users {
		if u.GUID == guid {
			return i
		}
	}
	return -1
}

func copyRules(rules map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(rules))
	for k, v := range rules {
		c[k] = v
	}
	return c
}
