package entity

import (
	"testing"
	"time"

	"github.com/go-test/deep"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/dcrodman/warpsync/internal/protocol"
)

func newTestEntity() *Entity {
	e := New("Ship")
	e.Color.Set(0x336699)
	e.Position.Set(protocol.Vector3{X: 1, Y: 2, Z: 3})
	e.Rotation.Set(protocol.Quaternion{X: 0, Y: 0.7071, Z: 0, W: 0.7071})
	e.Velocity.Set(protocol.Vector3{X: -1})
	e.AngularVelocity.Set(protocol.Vector3{Z: 0.5})
	e.IsSpectating.Set(true)
	e.SetActions([]string{"shoot", "boost", "shoot"})
	return e
}

func TestEntity_DataRoundTrip(t *testing.T) {
	original := newTestEntity()
	data := original.Data()

	copied := &Entity{GUID: data.GUID}
	copied.ApplyDelta(&data, false)

	if diff := deep.Equal(original.Data(), copied.Data()); diff != nil {
		t.Errorf("round tripped entity did not match: %v", diff)
	}
}

func TestEntity_ActionsAreASortedSet(t *testing.T) {
	e := newTestEntity()
	if diff := cmp.Diff([]string{"boost", "shoot"}, e.Actions.Get()); diff != "" {
		t.Errorf("actions did not match expected; diff:\n%s", diff)
	}
	if !e.HasAction("boost") || e.HasAction("jump") {
		t.Errorf("HasAction() reported the wrong actions")
	}
}

func TestEntity_ApplyDeltaTracksProvenance(t *testing.T) {
	e := newTestEntity()
	position := protocol.Vector3{X: 9}
	actions := []string{"jump"}

	e.ApplyDelta(&protocol.EntityDelta{GUID: e.GUID, Position: &position, Actions: &actions}, true)

	if !e.Position.IsFromClient() || !e.Actions.IsFromClient() {
		t.Errorf("expected client provenance for the applied fields")
	}
	if e.Velocity.IsFromClient() || e.Color.IsFromClient() {
		t.Errorf("expected untouched fields to keep server provenance")
	}
	if e.Position.Get() != position {
		t.Errorf("expected position %v, got %v", position, e.Position.Get())
	}

	e.Position.Set(protocol.Vector3{})
	if e.Position.IsFromClient() {
		t.Errorf("expected Set to restore server provenance")
	}
}

func TestUser_View(t *testing.T) {
	u := NewUser("peer-1")
	u.Username = "alice"
	u.LobbyColor = 0xFF0000

	expected := protocol.UserData{GUID: u.GUID, Username: "alice", LobbyColor: 0xFF0000}
	if diff := cmp.Diff(expected, u.View()); diff != "" {
		t.Errorf("user view did not match expected; diff:\n%s", diff)
	}
	if u.EntityType.Get() != UserEntityType {
		t.Errorf("expected entity type %s, got %s", UserEntityType, u.EntityType.Get())
	}
}

func TestObserver_FirstSightSendsFullState(t *testing.T) {
	e := newTestEntity()
	o := NewObserver(uuid.New(), 0)

	deltas, removed := o.Diff([]*Entity{e}, time.Second)

	expected := e.Data()
	expected.IsResyncRequested = nil
	if diff := cmp.Diff([]protocol.EntityDelta{expected}, deltas); diff != "" {
		t.Errorf("deltas did not match expected; diff:\n%s", diff)
	}
	if len(removed) != 0 {
		t.Errorf("expected nothing removed, got %v", removed)
	}
}

func TestObserver_UnchangedStateYieldsEmptyDelta(t *testing.T) {
	e := newTestEntity()
	o := NewObserver(uuid.New(), 0)
	o.Diff([]*Entity{e}, time.Second)

	deltas, _ := o.Diff([]*Entity{e}, time.Second)
	if len(deltas) != 0 {
		t.Errorf("expected no deltas for unchanged state, got %v", deltas)
	}
}

func TestObserver_SendsOnlyChangedFields(t *testing.T) {
	e := newTestEntity()
	o := NewObserver(uuid.New(), 0)
	o.Diff([]*Entity{e}, time.Second)

	position := protocol.Vector3{X: 5, Y: 5, Z: 5}
	e.Position.Set(position)
	e.SetActions([]string{"boost"})

	deltas, _ := o.Diff([]*Entity{e}, time.Second)
	actions := []string{"boost"}
	expected := []protocol.EntityDelta{{GUID: e.GUID, Position: &position, Actions: &actions}}
	if diff := cmp.Diff(expected, deltas); diff != "" {
		t.Errorf("deltas did not match expected; diff:\n%s", diff)
	}
}

func TestObserver_ResyncRequestSendsFullState(t *testing.T) {
	e := newTestEntity()
	o := NewObserver(uuid.New(), 0)
	o.Diff([]*Entity{e}, time.Second)

	e.IsResyncRequested = true
	deltas, _ := o.Diff([]*Entity{e}, time.Second)
	if len(deltas) != 1 || deltas[0].Position == nil || deltas[0].EntityType == nil || deltas[0].Actions == nil {
		t.Fatalf("expected a full state after a resync request, got %v", deltas)
	}
	if deltas[0].IsResyncRequested != nil {
		t.Errorf("expected the resync flag itself to stay off the wire")
	}
}

func TestObserver_PeriodicResync(t *testing.T) {
	e := newTestEntity()
	o := NewObserver(uuid.New(), 3*time.Second)
	o.Diff([]*Entity{e}, time.Second)

	if deltas, _ := o.Diff([]*Entity{e}, time.Second); len(deltas) != 0 {
		t.Fatalf("expected no deltas before the resync interval, got %v", deltas)
	}
	if deltas, _ := o.Diff([]*Entity{e}, time.Second); len(deltas) != 1 {
		t.Fatalf("expected a full snapshot once the resync interval elapsed, got %v", deltas)
	}
}

func TestObserver_ReportsRemovedEntities(t *testing.T) {
	a, b := newTestEntity(), newTestEntity()
	o := NewObserver(uuid.New(), 0)
	o.Diff([]*Entity{a, b}, time.Second)

	_, removed := o.Diff([]*Entity{a}, time.Second)
	if diff := cmp.Diff([]uuid.UUID{b.GUID}, removed); diff != "" {
		t.Errorf("removed entities did not match expected; diff:\n%s", diff)
	}

	// Once reported the entity is forgotten.
	if _, removed := o.Diff([]*Entity{a}, time.Second); len(removed) != 0 {
		t.Errorf("expected removal to be reported once, got %v", removed)
	}
}

func TestObserver_DoesNotEchoClientFields(t *testing.T) {
	u := NewUser("peer-1")
	o := NewObserver(u.GUID, 0)
	o.Diff([]*Entity{u.Entity}, time.Second)

	position := protocol.Vector3{X: 3}
	u.ApplyDelta(&protocol.EntityDelta{GUID: u.GUID, Position: &position}, true)
	if deltas, _ := o.Diff([]*Entity{u.Entity}, time.Second); len(deltas) != 0 {
		t.Errorf("expected client authored fields not to be echoed, got %v", deltas)
	}

	// Other observers do see the change.
	other := NewObserver(uuid.New(), 0)
	deltas, _ := other.Diff([]*Entity{u.Entity}, time.Second)
	if len(deltas) != 1 || *deltas[0].Position != position {
		t.Errorf("expected other observers to receive the position, got %v", deltas)
	}

	// A server correction is echoed.
	u.Position.Set(protocol.Vector3{})
	deltas, _ = o.Diff([]*Entity{u.Entity}, time.Second)
	if len(deltas) != 1 || deltas[0].Position == nil {
		t.Errorf("expected the server correction to be sent, got %v", deltas)
	}
}
