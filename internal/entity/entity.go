// Package entity holds the replicated game state: entities, the users that
// are entities themselves, and the per-observer bookkeeping that turns state
// into sparse deltas.
package entity

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dcrodman/warpsync/internal/protocol"
)

// Property is a replicated value that remembers whether the client wrote it.
// Game modes use the provenance to decide how far to trust a value.
type Property[T any] struct {
	value      T
	fromClient bool
}

func (p *Property[T]) Get() T { return p.value }

// Set stores a server authored value.
func (p *Property[T]) Set(v T) {
	p.value = v
	p.fromClient = false
}

// SetFromClient stores a value reported by the owning client.
func (p *Property[T]) SetFromClient(v T) {
	p.value = v
	p.fromClient = true
}

func (p *Property[T]) IsFromClient() bool { return p.fromClient }

func (p *Property[T]) set(v T, fromClient bool) {
	p.value = v
	p.fromClient = fromClient
}

// Entity is a replicable object in a lobby's world.
type Entity struct {
	GUID uuid.UUID

	EntityType      Property[string]
	Color           Property[protocol.Color]
	IsSpectating    Property[bool]
	Position        Property[protocol.Vector3]
	Rotation        Property[protocol.Quaternion]
	Velocity        Property[protocol.Vector3]
	AngularVelocity Property[protocol.Vector3]
	// Actions is a set, kept sorted.
	Actions Property[[]string]

	// IsResyncRequested makes the next replication send the full state.
	IsResyncRequested bool
}

// New creates an entity of the given type with a fresh guid.
func New(entityType string) *Entity {
	e := &Entity{GUID: uuid.New()}
	e.EntityType.Set(entityType)
	e.Color.Set(protocol.White)
	e.Rotation.Set(protocol.IdentityRotation)
	e.Actions.Set([]string{})
	return e
}

// SetActions replaces the action set with a server authored one.
func (e *Entity) SetActions(actions []string) {
	e.Actions.Set(normalizeActions(actions))
}

// HasAction reports whether action is active.
func (e *Entity) HasAction(action string) bool {
	actions := e.Actions.Get()
	i := sort.SearchStrings(actions, action)
	return i < len(actions) && actions[i] == action
}

// Data returns the full state of the entity with every field populated.
func (e *Entity) Data() protocol.EntityDelta {
	entityType := e.EntityType.Get()
	color := e.Color.Get()
	isSpectating := e.IsSpectating.Get()
	position := e.Position.Get()
	rotation := e.Rotation.Get()
	velocity := e.Velocity.Get()
	angularVelocity := e.AngularVelocity.Get()
	actions := append([]string{}, e.Actions.Get()...)
	isResyncRequested := e.IsResyncRequested

	return protocol.EntityDelta{
		GUID:              e.GUID,
		EntityType:        &entityType,
		Color:             &color,
		IsSpectating:      &isSpectating,
		Position:          &position,
		Rotation:          &rotation,
		Velocity:          &velocity,
		AngularVelocity:   &angularVelocity,
		Actions:           &actions,
		IsResyncRequested: &isResyncRequested,
	}
}

// ApplyDelta copies every populated field of delta into the entity. Values
// from the client are marked as such.
func (e *Entity) ApplyDelta(delta *protocol.EntityDelta, fromClient bool) {
	if delta.EntityType != nil {
		e.EntityType.set(*delta.EntityType, fromClient)
	}
	if delta.Color != nil {
		e.Color.set(*delta.Color, fromClient)
	}
	if delta.IsSpectating != nil {
		e.IsSpectating.set(*delta.IsSpectating, fromClient)
	}
	if delta.Position != nil {
		e.Position.set(*delta.Position, fromClient)
	}
	if delta.Rotation != nil {
		e.Rotation.set(*delta.Rotation, fromClient)
	}
	if delta.Velocity != nil {
		e.Velocity.set(*delta.Velocity, fromClient)
	}
	if delta.AngularVelocity != nil {
		e.AngularVelocity.set(*delta.AngularVelocity, fromClient)
	}
	if delta.Actions != nil {
		e.Actions.set(normalizeActions(*delta.Actions), fromClient)
	}
	if delta.IsResyncRequested != nil {
		e.IsResyncRequested = *delta.IsResyncRequested
	}
}

func normalizeActions(actions []string) []string {
	set := make([]string, 0, len(actions))
	seen := make(map[string]bool, len(actions))
	for _, action := range actions {
		if action == "" || seen[action] {
			continue
		}
		seen[action] = true
		set = append(set, action)
	}
	sort.Strings(set)
	return set
}
