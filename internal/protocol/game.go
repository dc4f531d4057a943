package protocol

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxTimerSeconds bounds the countdown of start, restart and stop timers.
const MaxTimerSeconds = 24 * 60 * 60

func isTimeValid(seconds float64) bool {
	return !math.IsNaN(seconds) && seconds >= 0 && seconds <= MaxTimerSeconds
}

// StartGameFailReason enumerates why StartGame failed.
type StartGameFailReason string

const (
	StartGameFailUnknown                  StartGameFailReason = "Unknown"
	StartGameFailInvalid                  StartGameFailReason = "Invalid"
	StartGameFailInvalidTime              StartGameFailReason = "InvalidTime"
	StartGameFailGameModeIsAlreadyRunning StartGameFailReason = "GameModeIsAlreadyRunning"
)

// StartGame schedules the start of the game in the sender's lobby after Time
// seconds.
type StartGame struct {
	Time float64 `json:"time"`
}

func (m *StartGame) Validate() error {
	if !isTimeValid(m.Time) {
		return Fail(&StartGameFailed{
			Message: fmt.Sprintf("time must be between 0 and %d seconds", MaxTimerSeconds),
			Reason:  StartGameFailInvalidTime,
		})
	}
	return nil
}

// StartGameFailed rejects StartGame.
type StartGameFailed struct {
	Message string              `json:"message"`
	Reason  StartGameFailReason `json:"reason"`
}

func (m *StartGameFailed) FailureReason() string { return string(m.Reason) }

// RestartGameFailReason enumerates why RestartGame failed.
type RestartGameFailReason string

const (
	RestartGameFailUnknown              RestartGameFailReason = "Unknown"
	RestartGameFailInvalid              RestartGameFailReason = "Invalid"
	RestartGameFailInvalidTime          RestartGameFailReason = "InvalidTime"
	RestartGameFailGameModeIsNotRunning RestartGameFailReason = "GameModeIsNotRunning"
)

// RestartGame schedules a restart of the running game after Time seconds.
type RestartGame struct {
	Time float64 `json:"time"`
}

func (m *RestartGame) Validate() error {
	if !isTimeValid(m.Time) {
		return Fail(&RestartGameFailed{
			Message: fmt.Sprintf("time must be between 0 and %d seconds", MaxTimerSeconds),
			Reason:  RestartGameFailInvalidTime,
		})
	}
	return nil
}

// RestartGameFailed rejects RestartGame.
type RestartGameFailed struct {
	Message string                `json:"message"`
	Reason  RestartGameFailReason `json:"reason"`
}

func (m *RestartGameFailed) FailureReason() string { return string(m.Reason) }

// StopGameFailReason enumerates why StopGame failed.
type StopGameFailReason string

const (
	StopGameFailUnknown              StopGameFailReason = "Unknown"
	StopGameFailInvalid              StopGameFailReason = "Invalid"
	StopGameFailInvalidTime          StopGameFailReason = "InvalidTime"
	StopGameFailGameModeIsNotRunning StopGameFailReason = "GameModeIsNotRunning"
)

// StopGame schedules the end of the running game after Time seconds.
type StopGame struct {
	Time float64 `json:"time"`
}

func (m *StopGame) Validate() error {
	if !isTimeValid(m.Time) {
		return Fail(&StopGameFailed{
			Message: fmt.Sprintf("time must be between 0 and %d seconds", MaxTimerSeconds),
			Reason:  StopGameFailInvalidTime,
		})
	}
	return nil
}

// StopGameFailed rejects StopGame.
type StopGameFailed struct {
	Message string             `json:"message"`
	Reason  StopGameFailReason `json:"reason"`
}

func (m *StopGameFailed) FailureReason() string { return string(m.Reason) }

// CancelStartGameTimerFailReason enumerates why CancelStartGameTimer failed.
type CancelStartGameTimerFailReason string

const (
	CancelStartGameTimerFailUnknown                    CancelStartGameTimerFailReason = "Unknown"
	CancelStartGameTimerFailGameStartTimerIsNotRunning CancelStartGameTimerFailReason = "GameStartTimerIsNotRunning"
)

// CancelStartGameTimer cancels a pending start.
type CancelStartGameTimer struct{}

// CancelStartGameTimerFailed rejects CancelStartGameTimer.
type CancelStartGameTimerFailed struct {
	Message string                         `json:"message"`
	Reason  CancelStartGameTimerFailReason `json:"reason"`
}

func (m *CancelStartGameTimerFailed) FailureReason() string { return string(m.Reason) }

// CancelRestartStopGameTimersFailReason enumerates why
// CancelRestartStopGameTimers failed.
type CancelRestartStopGameTimersFailReason string

const (
	CancelRestartStopGameTimersFailUnknown                            CancelRestartStopGameTimersFailReason = "Unknown"
	CancelRestartStopGameTimersFailGameRestartStopTimersAreNotRunning CancelRestartStopGameTimersFailReason = "GameRestartStopTimersAreNotRunning"
)

// CancelRestartStopGameTimers cancels pending restarts and stops.
type CancelRestartStopGameTimers struct{}

// CancelRestartStopGameTimersFailed rejects CancelRestartStopGameTimers.
type CancelRestartStopGameTimersFailed struct {
	Message string                                `json:"message"`
	Reason  CancelRestartStopGameTimersFailReason `json:"reason"`
}

func (m *CancelRestartStopGameTimersFailed) FailureReason() string { return string(m.Reason) }

// GameStartTimerStarted tells members when the game is going to start.
type GameStartTimerStarted struct {
	Time float64 `json:"time"`
}

// GameRestartTimerStarted tells members when the game is going to restart.
type GameRestartTimerStarted struct {
	Time float64 `json:"time"`
}

// GameStopTimerStarted tells members when the game is going to stop.
type GameStopTimerStarted struct {
	Time float64 `json:"time"`
}

// GameStartTimerCanceled tells members a pending start was canceled.
type GameStartTimerCanceled struct{}

// GameRestartStopTimersCanceled tells members pending restarts and stops were
// canceled.
type GameRestartStopTimersCanceled struct{}

// GameLoading tells members that the game mode is being set up.
type GameLoading struct {
	GameMode string `json:"gameMode"`
}

// GameStarted tells members that the game is running.
type GameStarted struct {
	GameTime float64 `json:"gameTime"`
}

// GameEnded publishes the results of a finished game.
type GameEnded struct {
	Results     map[string]interface{}               `json:"results"`
	UserResults map[uuid.UUID]map[string]interface{} `json:"userResults"`
}

// ClientTickFailReason enumerates why ClientTick failed.
type ClientTickFailReason string

const (
	ClientTickFailUnknown               ClientTickFailReason = "Unknown"
	ClientTickFailInvalid               ClientTickFailReason = "Invalid"
	ClientTickFailInvalidEntity         ClientTickFailReason = "InvalidEntity"
	ClientTickFailEntityIsNotOwned      ClientTickFailReason = "EntityIsNotOwned"
	ClientTickFailFieldIsNotClientOwned ClientTickFailReason = "FieldIsNotClientOwned"
	ClientTickFailGameModeIsNotRunning  ClientTickFailReason = "GameModeIsNotRunning"
)

// ClientTick carries the locally authoritative state of the sender's own
// entity.
type ClientTick struct {
	Entities []EntityDelta `json:"entities"`
}

func (m *ClientTick) Validate() error {
	fail := func(reason ClientTickFailReason, format string, args ...interface{}) error {
		return Fail(&ClientTickFailed{Message: fmt.Sprintf(format, args...), Reason: reason})
	}

	for i := range m.Entities {
		delta := &m.Entities[i]
		switch {
		case delta.GUID == uuid.Nil:
			return fail(ClientTickFailInvalidEntity, "entity %d has no guid", i)
		case delta.HasServerAuthoritativeFields():
			return fail(ClientTickFailFieldIsNotClientOwned, "entity %s carries server owned fields", delta.GUID)
		case !delta.IsFinite():
			return fail(ClientTickFailInvalidEntity, "entity %s carries non finite values", delta.GUID)
		}
	}
	return nil
}

// ClientTickFailed rejects ClientTick.
type ClientTickFailed struct {
	Message string               `json:"message"`
	Reason  ClientTickFailReason `json:"reason"`
}

func (m *ClientTickFailed) FailureReason() string { return string(m.Reason) }

// ServerTick carries the state changes one observer has not seen yet.
type ServerTick struct {
	Entities        []EntityDelta `json:"entities"`
	RemovedEntities []uuid.UUID   `json:"removedEntities,omitempty"`
	GameTime        float64       `json:"gameTime"`
}

// HitUserFailReason enumerates why HitUser failed.
type HitUserFailReason string

const (
	HitUserFailUnknown              HitUserFailReason = "Unknown"
	HitUserFailInvalid              HitUserFailReason = "Invalid"
	HitUserFailInvalidIssuer        HitUserFailReason = "InvalidIssuer"
	HitUserFailInvalidVictim        HitUserFailReason = "InvalidVictim"
	HitUserFailInvalidWeaponName    HitUserFailReason = "InvalidWeaponName"
	HitUserFailInvalidDamage        HitUserFailReason = "InvalidDamage"
	HitUserFailGameModeIsNotRunning HitUserFailReason = "GameModeIsNotRunning"
)

// HitUser reports that the issuer hit the victim.
type HitUser struct {
	Issuer      uuid.UUID `json:"issuer"`
	Victim      uuid.UUID `json:"victim"`
	WeaponName  string    `json:"weaponName"`
	HitPosition Vector3   `json:"hitPosition"`
	HitForce    Vector3   `json:"hitForce"`
	Damage      float32   `json:"damage"`
}

func (m *HitUser) Validate() error {
	fail := func(reason HitUserFailReason, format string, args ...interface{}) error {
		return Fail(&HitUserFailed{Message: fmt.Sprintf(format, args...), Reason: reason})
	}

	weapon := strings.TrimSpace(m.WeaponName)
	switch {
	case m.Issuer == uuid.Nil:
		return fail(HitUserFailInvalidIssuer, "issuer is missing")
	case m.Victim == uuid.Nil:
		return fail(HitUserFailInvalidVictim, "victim is missing")
	case weapon == "" || utf8.RuneCountInString(weapon) > MaxWeaponNameLength:
		return fail(HitUserFailInvalidWeaponName,
			"weapon name must be between 1 and %d characters", MaxWeaponNameLength)
	case !isFinite(m.Damage) || m.Damage < 0:
		return fail(HitUserFailInvalidDamage, "damage must be a non negative number")
	case !m.HitPosition.IsFinite() || !m.HitForce.IsFinite():
		return fail(HitUserFailInvalid, "hit position and force must be finite")
	}
	return nil
}

// HitUserFailed rejects HitUser.
type HitUserFailed struct {
	Message string            `json:"message"`
	Reason  HitUserFailReason `json:"reason"`
}

func (m *HitUserFailed) FailureReason() string { return string(m.Reason) }

// UserKilled tells members that the game mode decided a hit was lethal.
type UserKilled struct {
	Victim uuid.UUID `json:"victim"`
	Issuer uuid.UUID `json:"issuer"`
}
