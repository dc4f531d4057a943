// Package gamemode defines the contract between lobbies and the rule sets
// played in them.
//
// Game modes are provided by resources. At startup every resource registers
// the modes it offers under a name; a lobby whose game is starting asks the
// Registry for a fresh instance and drives it through the callbacks below
// until the game stops or the lobby closes.
package gamemode

import (
	"time"

	"github.com/google/uuid"

	"github.com/dcrodman/warpsync/internal/entity"
	"github.com/dcrodman/warpsync/internal/protocol"
)

// Lobby is the view of its lobby a game mode gets.
type Lobby interface {
	Code() string
	GameModeRules() map[string]interface{}
	// GameTime is the time elapsed since the game started.
	GameTime() time.Duration
	Users() []*entity.User
	User(guid uuid.UUID) (*entity.User, bool)
	Entities() []*entity.Entity
	SpawnEntity(entityType string) *entity.Entity
	DestroyEntity(guid uuid.UUID) bool
	// KillUser announces that issuer killed victim. An unknown issuer (e.g.
	// uuid.Nil) means the world did it.
	KillUser(victim, issuer uuid.UUID) error
	// RequestStop schedules the end of the game.
	RequestStop(after time.Duration) error
}

// Hit is a validated HitUser report.
type Hit struct {
	Issuer      *entity.User
	Victim      *entity.User
	WeaponName  string
	HitPosition protocol.Vector3
	HitForce    protocol.Vector3
	Damage      float32
}

// GameMode is one instance of a rule set, bound to one running lobby.
type GameMode interface {
	OnInitialized(resource Resource, lobby Lobby)
	OnClosed()
	OnUserJoined(user *entity.User)
	OnUserLeft(user *entity.User)
	OnUserSpawned(user *entity.User)
	OnUserKilled(victim, issuer *entity.User)
	OnGameEntityCreated(e *entity.Entity)
	OnGameEntityDestroyed(e *entity.Entity)
	OnGameTicked(dt time.Duration)
	OnUserHit(hit Hit)
	Results() Results
}

// Results are published to every member when a game ends.
type Results struct {
	Aggregate map[string]interface{}
	PerUser   map[uuid.UUID]map[string]interface{}
}

// Sanitized returns a copy of the results without null values.
func (r Results) Sanitized() Results {
	clean := Results{
		Aggregate: withoutNulls(r.Aggregate),
		PerUser:   make(map[uuid.UUID]map[string]interface{}, len(r.PerUser)),
	}
	for guid, values := range r.PerUser {
		clean.PerUser[guid] = withoutNulls(values)
	}
	return clean
}

func withoutNulls(values map[string]interface{}) map[string]interface{} {
	clean := make(map[string]interface{}, len(values))
	for k, v := range values {
		if v != nil {
			clean[k] = v
		}
	}
	return clean
}

// Base implements every callback as a no-op so that modes only override what
// they care about.
type Base struct{}

func (Base) OnInitialized(Resource, Lobby)           {}
func (Base) OnClosed()                               {}
func (Base) OnUserJoined(*entity.User)               {}
func (Base) OnUserLeft(*entity.User)                 {}
func (Base) OnUserSpawned(*entity.User)              {}
func (Base) OnUserKilled(*entity.User, *entity.User) {}
func (Base) OnGameEntityCreated(*entity.Entity)      {}
func (Base) OnGameEntityDestroyed(*entity.Entity)    {}
func (Base) OnGameTicked(time.Duration)              {}
func (Base) OnUserHit(Hit)                           {}
func (Base) Results() Results                        { return Results{} }
