package lobby

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/warpsync/internal/entity"
	"github.com/dcrodman/warpsync/internal/gamemode"
	"github.com/dcrodman/warpsync/internal/protocol"
)

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// StartGame schedules the start of the game.
func (l *Lobby) StartGame(after float64) error {
	fail := func(reason protocol.StartGameFailReason, format string, args ...interface{}) error {
		return protocol.Fail(&protocol.StartGameFailed{Message: fmt.Sprintf(format, args...), Reason: reason})
	}

	switch {
	case l.state != protocol.LobbyOpen:
		return fail(protocol.StartGameFailGameModeIsAlreadyRunning, "game is %s", l.state)
	case uint32(len(l.users)) < l.minUserCount:
		return fail(protocol.StartGameFailInvalid, "at least %d users are needed to start", l.minUserCount)
	}

	l.scheduleStart(seconds(after), false)
	return nil
}

// CancelStartGameTimer cancels a scheduled start.
func (l *Lobby) CancelStartGameTimer() error {
	if l.startAt.IsZero() {
		return protocol.Fail(&protocol.CancelStartGameTimerFailed{
			Message: "no game start is scheduled",
			Reason:  protocol.CancelStartGameTimerFailGameStartTimerIsNotRunning,
		})
	}
	l.cancelStart()
	return nil
}

// RestartGame schedules ending the running game and starting a fresh one.
func (l *Lobby) RestartGame(after float64) error {
	if l.state != protocol.LobbyRunning {
		return protocol.Fail(&protocol.RestartGameFailed{
			Message: fmt.Sprintf("game is %s", l.state),
			Reason:  protocol.RestartGameFailGameModeIsNotRunning,
		})
	}
	l.restartAt = l.clock().Add(seconds(after))
	l.logger.WithField("after", after).Info("game restart scheduled")
	l.Broadcast(&protocol.GameRestartTimerStarted{Time: after})
	return nil
}

// StopGame schedules the end of the running game.
func (l *Lobby) StopGame(after float64) error {
	if l.state != protocol.LobbyRunning {
		return protocol.Fail(&protocol.StopGameFailed{
			Message: fmt.Sprintf("game is %s", l.state),
			Reason:  protocol.StopGameFailGameModeIsNotRunning,
		})
	}
	l.scheduleStop(seconds(after))
	return nil
}

// CancelRestartStopGameTimers cancels every scheduled restart and stop.
func (l *Lobby) CancelRestartStopGameTimers() error {
	if l.restartAt.IsZero() && l.stopAt.IsZero() {
		return protocol.Fail(&protocol.CancelRestartStopGameTimersFailed{
			Message: "no game restart or stop is scheduled",
			Reason:  protocol.CancelRestartStopGameTimersFailGameRestartStopTimersAreNotRunning,
		})
	}
	l.restartAt, l.stopAt = time.Time{}, time.Time{}
	l.Broadcast(&protocol.GameRestartStopTimersCanceled{})
	return nil
}

// RequestStop lets the game mode end the game.
func (l *Lobby) RequestStop(after time.Duration) error {
	if !l.IsRunning() {
		return fmt.Errorf("error stopping game in lobby %s: %w", l.code, ErrGameNotRunning)
	}
	l.scheduleStop(after)
	return nil
}

func (l *Lobby) scheduleStart(after time.Duration, auto bool) {
	l.startAt = l.clock().Add(after)
	l.autoStart = auto
	l.logger.WithFields(logrus.Fields{"after": after, "auto": auto}).Info("game start scheduled")
	l.Broadcast(&protocol.GameStartTimerStarted{Time: after.Seconds()})
}

func (l *Lobby) cancelStart() {
	l.startAt = time.Time{}
	l.autoStart = false
	l.logger.Info("game start canceled")
	l.Broadcast(&protocol.GameStartTimerCanceled{})
}

func (l *Lobby) scheduleStop(after time.Duration) {
	l.stopAt = l.clock().Add(after)
	l.logger.WithField("after", after).Info("game stop scheduled")
	l.Broadcast(&protocol.GameStopTimerStarted{Time: after.Seconds()})
}

func (l *Lobby) checkAutoStart() {
	if l.isStartingGameAutomatically && l.state == protocol.LobbyOpen && l.startAt.IsZero() &&
		uint32(len(l.users)) >= l.minUserCount {
		l.scheduleStart(l.autoStartDelay, true)
	}
}

func fired(at, now time.Time) bool {
	return !at.IsZero() && !now.Before(at)
}

// Update advances the lobby by one tick: due timers fire, a loading game
// spawns its users and a running game mode ticks.
func (l *Lobby) Update(dt time.Duration) {
	if l.closed {
		return
	}
	now := l.clock()

	switch l.state {
	case protocol.LobbyOpen:
		if fired(l.startAt, now) {
			l.startAt = time.Time{}
			l.autoStart = false
			l.load()
		}
	case protocol.LobbyLoading:
		l.run()
	case protocol.LobbyRunning:
		l.gameTime += dt
		l.mode.OnGameTicked(dt)
		switch {
		case fired(l.stopAt, now):
			l.end()
			l.state = protocol.LobbyEnded
		case fired(l.restartAt, now):
			l.end()
			l.load()
		}
	case protocol.LobbyEnded:
		// Automatic starts are only armed when the member count reaches the
		// minimum, so the lobby does not loop through games.
		l.state = protocol.LobbyOpen
	}
}

// load constructs the game mode; members spawn on the next tick.
func (l *Lobby) load() {
	mode, resource, err := l.modes.Create(l.gameModeName)
	if err != nil {
		l.logger.WithError(err).Error("error creating game mode")
		l.state = protocol.LobbyOpen
		l.Broadcast(&protocol.GameStartTimerCanceled{})
		return
	}

	l.mode, l.resource = mode, resource
	l.state = protocol.LobbyLoading
	l.gameTime = 0
	l.observers = make(map[uuid.UUID]*entity.Observer)
	l.logger.WithField("mode", l.gameModeName).Info("game loading")
	l.Broadcast(&protocol.GameLoading{GameMode: l.gameModeName})

	l.mode.OnInitialized(resource, l)
}

func (l *Lobby) run() {
	for _, u := range l.users {
		l.spawn(u)
	}
	l.state = protocol.LobbyRunning
	l.logger.Info("game started")
	l.Broadcast(&protocol.GameStarted{GameTime: l.gameTime.Seconds()})
}

func (l *Lobby) spawn(user *entity.User) {
	user.ResetGameState()
	l.mode.OnUserSpawned(user)
}

// end publishes the results of the running game and drops the game mode.
func (l *Lobby) end() {
	results := l.mode.Results().Sanitized()
	l.Broadcast(&protocol.GameEnded{Results: results.Aggregate, UserResults: results.PerUser})

	l.mode.OnClosed()
	l.mode, l.resource = nil, nil
	l.restartAt, l.stopAt = time.Time{}, time.Time{}
	l.entities = nil
	l.logger.WithField("gameTime", l.gameTime).Info("game ended")
}

// GameTime is the time elapsed since the game started.
func (l *Lobby) GameTime() time.Duration { return l.gameTime }

// Entities returns the entities spawned by the game mode.
func (l *Lobby) Entities() []*entity.Entity {
	return append([]*entity.Entity(nil), l.entities...)
}

// SpawnEntity adds a game entity to the lobby's world.
func (l *Lobby) SpawnEntity(entityType string) *entity.Entity {
	e := entity.New(entityType)
	l.entities = append(l.entities, e)
	if l.mode != nil {
		l.mode.OnGameEntityCreated(e)
	}
	return e
}

// DestroyEntity removes a game entity from the lobby's world.
func (l *Lobby) DestroyEntity(guid uuid.UUID) bool {
	for i, e := range l.entities {
		if e.GUID == guid {
			l.entities = append(l.entities[:i], l.entities[i+1:]...)
			if l.mode != nil {
				l.mode.OnGameEntityDestroyed(e)
			}
			return true
		}
	}
	return false
}

// KillUser announces a kill to the members and the game mode.
func (l *Lobby) KillUser(victim, issuer uuid.UUID) error {
	if !l.IsRunning() {
		return fmt.Errorf("error killing %s in lobby %s: %w", victim, l.code, ErrGameNotRunning)
	}
	v, ok := l.User(victim)
	if !ok {
		return fmt.Errorf("error killing %s in lobby %s: %w", victim, l.code, ErrUserNotFound)
	}
	i, _ := l.User(issuer)

	l.Broadcast(&protocol.UserKilled{Victim: victim, Issuer: issuer})
	l.mode.OnUserKilled(v, i)
	return nil
}

// Hit forwards a hit reported by issuer to the game mode.
func (l *Lobby) Hit(issuer *entity.User, hit *protocol.HitUser) error {
	fail := func(reason protocol.HitUserFailReason, format string, args ...interface{}) error {
		return protocol.Fail(&protocol.HitUserFailed{Message: fmt.Sprintf(format, args...), Reason: reason})
	}

	if l.state != protocol.LobbyRunning {
		return fail(protocol.HitUserFailGameModeIsNotRunning, "game is %s", l.state)
	}
	if hit.Issuer != issuer.GUID {
		return fail(protocol.HitUserFailInvalidIssuer, "users can only report their own hits")
	}
	victim, ok := l.User(hit.Victim)
	if !ok {
		return fail(protocol.HitUserFailInvalidVictim, "%s is not in the lobby", hit.Victim)
	}

	l.mode.OnUserHit(gamemode.Hit{
		Issuer:      issuer,
		Victim:      victim,
		WeaponName:  hit.WeaponName,
		HitPosition: hit.HitPosition,
		HitForce:    hit.HitForce,
		Damage:      hit.Damage,
	})
	return nil
}

// ApplyClientTick stores the state a client reported for its own user.
func (l *Lobby) ApplyClientTick(user *entity.User, tick *protocol.ClientTick) error {
	fail := func(reason protocol.ClientTickFailReason, format string, args ...interface{}) error {
		return protocol.Fail(&protocol.ClientTickFailed{Message: fmt.Sprintf(format, args...), Reason: reason})
	}

	if l.state != protocol.LobbyRunning {
		return fail(protocol.ClientTickFailGameModeIsNotRunning, "game is %s", l.state)
	}
	for _, delta := range tick.Entities {
		if delta.GUID != user.GUID {
			return fail(protocol.ClientTickFailEntityIsNotOwned, "entity %s is not owned by the sender", delta.GUID)
		}
	}
	for i := range tick.Entities {
		user.ApplyDelta(&tick.Entities[i], true)
	}
	return nil
}

// Replicate sends every member of a running game the state it has not seen
// yet. Resync requests are served and cleared.
func (l *Lobby) Replicate(dt time.Duration) {
	if l.state != protocol.LobbyRunning {
		return
	}

	world := make([]*entity.Entity, 0, len(l.users)+len(l.entities))
	for _, u := range l.users {
		world = append(world, u.Entity)
	}
	world = append(world, l.entities...)

	for _, u := range l.users {
		observer, ok := l.observers[u.GUID]
		if !ok {
			observer = entity.NewObserver(u.GUID, l.resyncInterval)
			l.observers[u.GUID] = observer
		}
		deltas, removed := observer.Diff(world, dt)
		if len(deltas) == 0 && len(removed) == 0 {
			continue
		}
		if deltas == nil {
			deltas = []protocol.EntityDelta{}
		}
		l.notifier.Notify(u, &protocol.ServerTick{
			Entities:        deltas,
			RemovedEntities: removed,
			GameTime:        l.gameTime.Seconds(),
		})
	}

	for _, e := range world {
		e.IsResyncRequested = false
	}
}
