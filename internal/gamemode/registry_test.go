package gamemode

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

type testMode struct {
	Base
	id int
}

type testResource struct {
	name  string
	modes []string
}

func (r testResource) Name() string { return r.name }

func (r testResource) RegisterGameModes(registrar Registrar) {
	for i, mode := range r.modes {
		id := i
		registrar.Register(mode, func() GameMode { return &testMode{id: id} })
	}
}

func TestRegistry_Load(t *testing.T) {
	registry := NewRegistry()
	resource := testResource{name: "core", modes: []string{"Race", "Arena"}}
	if err := registry.Load(resource); err != nil {
		t.Fatalf("unexpected error loading resource: %v", err)
	}

	if diff := cmp.Diff([]string{"Arena", "Race"}, registry.Names()); diff != "" {
		t.Errorf("game mode names did not match expected; diff:\n%s", diff)
	}
	if !registry.IsAvailable("Race") || registry.IsAvailable("Tag") {
		t.Errorf("IsAvailable() reported the wrong modes")
	}
}

func TestRegistry_CreateReturnsFreshInstances(t *testing.T) {
	registry := NewRegistry()
	resource := testResource{name: "core", modes: []string{"Race"}}
	_ = registry.Load(resource)

	first, res, err := registry.Create("Race")
	if err != nil {
		t.Fatalf("unexpected error creating game mode: %v", err)
	}
	second, _, _ := registry.Create("Race")
	if first == second {
		t.Errorf("expected every Create() to return a new instance")
	}
	if res.Name() != "core" {
		t.Errorf("expected the offering resource to be returned, got %s", res.Name())
	}

	if _, _, err := registry.Create("Tag"); !errors.Is(err, ErrGameModeNotAvailable) {
		t.Errorf("expected ErrGameModeNotAvailable, got %v", err)
	}
}

func TestRegistry_DuplicateModes(t *testing.T) {
	registry := NewRegistry()
	_ = registry.Load(testResource{name: "core", modes: []string{"Race"}})

	err := registry.Load(testResource{name: "addon", modes: []string{"Race", "Tag"}})
	if !errors.Is(err, ErrDuplicateGameMode) {
		t.Fatalf("expected ErrDuplicateGameMode, got %v", err)
	}

	// The first registration wins and the rest of the resource still loads.
	_, res, _ := registry.Create("Race")
	if res.Name() != "core" {
		t.Errorf("expected Race to stay with core, got %s", res.Name())
	}
	if !registry.IsAvailable("Tag") {
		t.Errorf("expected Tag to be registered")
	}
}

func TestResults_Sanitized(t *testing.T) {
	guid := uuid.New()
	results := Results{
		Aggregate: map[string]interface{}{"winner": nil, "rounds": 3},
		PerUser: map[uuid.UUID]map[string]interface{}{
			guid: {"kills": 2, "title": nil},
		},
	}

	expected := Results{
		Aggregate: map[string]interface{}{"rounds": 3},
		PerUser: map[uuid.UUID]map[string]interface{}{
			guid: {"kills": 2},
		},
	}
	if diff := cmp.Diff(expected, results.Sanitized()); diff != "" {
		t.Errorf("sanitized results did not match expected; diff:\n%s", diff)
	}
}
