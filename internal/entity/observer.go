package entity

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/dcrodman/warpsync/internal/protocol"
)

// field describes one replicated field for diffing.
type field struct {
	fromClient func(e *Entity) bool
	changed    func(prev, cur *protocol.EntityDelta) bool
	copy       func(dst, src *protocol.EntityDelta)
}

var fields = []field{
	{
		fromClient: func(e *Entity) bool { return e.EntityType.IsFromClient() },
		changed:    func(prev, cur *protocol.EntityDelta) bool { return *prev.EntityType != *cur.EntityType },
		copy:       func(dst, src *protocol.EntityDelta) { dst.EntityType = src.EntityType },
	},
	{
		fromClient: func(e *Entity) bool { return e.Color.IsFromClient() },
		changed:    func(prev, cur *protocol.EntityDelta) bool { return *prev.Color != *cur.Color },
		copy:       func(dst, src *protocol.EntityDelta) { dst.Color = src.Color },
	},
	{
		fromClient: func(e *Entity) bool { return e.IsSpectating.IsFromClient() },
		changed:    func(prev, cur *protocol.EntityDelta) bool { return *prev.IsSpectating != *cur.IsSpectating },
		copy:       func(dst, src *protocol.EntityDelta) { dst.IsSpectating = src.IsSpectating },
	},
	{
		fromClient: func(e *Entity) bool { return e.Position.IsFromClient() },
		changed:    func(prev, cur *protocol.EntityDelta) bool { return *prev.Position != *cur.Position },
		copy:       func(dst, src *protocol.EntityDelta) { dst.Position = src.Position },
	},
	{
		fromClient: func(e *Entity) bool { return e.Rotation.IsFromClient() },
		changed:    func(prev, cur *protocol.EntityDelta) bool { return *prev.Rotation != *cur.Rotation },
		copy:       func(dst, src *protocol.EntityDelta) { dst.Rotation = src.Rotation },
	},
	{
		fromClient: func(e *Entity) bool { return e.Velocity.IsFromClient() },
		changed:    func(prev, cur *protocol.EntityDelta) bool { return *prev.Velocity != *cur.Velocity },
		copy:       func(dst, src *protocol.EntityDelta) { dst.Velocity = src.Velocity },
	},
	{
		fromClient: func(e *Entity) bool { return e.AngularVelocity.IsFromClient() },
		changed:    func(prev, cur *protocol.EntityDelta) bool { return *prev.AngularVelocity != *cur.AngularVelocity },
		copy:       func(dst, src *protocol.EntityDelta) { dst.AngularVelocity = src.AngularVelocity },
	},
	{
		fromClient: func(e *Entity) bool { return e.Actions.IsFromClient() },
		changed:    func(prev, cur *protocol.EntityDelta) bool { return !equalActions(*prev.Actions, *cur.Actions) },
		copy:       func(dst, src *protocol.EntityDelta) { dst.Actions = src.Actions },
	},
}

func equalActions(a, b []string) bool {
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

// Observer remembers what one user was last sent about every entity it can
// see, so that only changes need to be replicated.
type Observer struct {
	// Viewer is the observer's own entity. Fields its client wrote are not
	// echoed back unless it asked for a resync.
	Viewer uuid.UUID

	sent           map[uuid.UUID]protocol.EntityDelta
	resyncInterval time.Duration
	sinceResync    time.Duration
}

// NewObserver creates an observer that forces a full snapshot every
// resyncInterval; zero disables periodic resyncs.
func NewObserver(viewer uuid.UUID, resyncInterval time.Duration) *Observer {
	return &Observer{
		Viewer:         viewer,
		sent:           make(map[uuid.UUID]protocol.EntityDelta),
		resyncInterval: resyncInterval,
	}
}

// Diff returns the sparse deltas for entities, in the given order, plus the
// guids of entities sent before that are gone now. dt is the time elapsed
// since the previous call.
func (o *Observer) Diff(entities []*Entity, dt time.Duration) ([]protocol.EntityDelta, []uuid.UUID) {
	forceAll := false
	if o.resyncInterval > 0 {
		o.sinceResync += dt
		if o.sinceResync >= o.resyncInterval {
			o.sinceResync = 0
			forceAll = true
		}
	}

	var deltas []protocol.EntityDelta
	visible := make(map[uuid.UUID]bool, len(entities))
	for _, e := range entities {
		visible[e.GUID] = true
		if delta := o.diff(e, forceAll); !delta.IsEmpty() {
			deltas = append(deltas, delta)
		}
	}

	var removed []uuid.UUID
	for guid := range o.sent {
		if !visible[guid] {
			removed = append(removed, guid)
			delete(o.sent, guid)
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].String() < removed[j].String() })

	return deltas, removed
}

func (o *Observer) diff(e *Entity, forceAll bool) protocol.EntityDelta {
	cur := e.Data()
	cur.IsResyncRequested = nil
	prev, seen := o.sent[e.GUID]
	full := forceAll || !seen || e.IsResyncRequested
	own := e.GUID == o.Viewer

	delta := protocol.EntityDelta{GUID: e.GUID}
	for _, f := range fields {
		if own && !e.IsResyncRequested && f.fromClient(e) {
			continue
		}
		if full || f.changed(&prev, &cur) {
			f.copy(&delta, &cur)
		}
	}

	o.sent[e.GUID] = cur
	return delta
}

// Forget drops everything sent so far; the next Diff sends full states.
func (o *Observer) Forget() {
	o.sent = make(map[uuid.UUID]protocol.EntityDelta)
	o.sinceResync = 0
}
