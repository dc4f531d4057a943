package gamemode

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrGameModeNotAvailable = errors.New("game mode is not available")
	ErrDuplicateGameMode    = errors.New("game mode is already registered")
)

// Factory creates a fresh game mode instance.
type Factory func() GameMode

// Resource is a bundle of game content offering game modes.
type Resource interface {
	Name() string
	RegisterGameModes(registrar Registrar)
}

// Registrar is handed to a resource while it registers its modes.
type Registrar interface {
	Register(name string, factory Factory)
}

type registration struct {
	resource Resource
	factory  Factory
}

// Registry maps game mode names to the factories creating them.
type Registry struct {
	modes map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{modes: make(map[string]registration)}
}

// Load registers every game mode resource offers.
func (r *Registry) Load(resource Resource) error {
	registrar := &resourceRegistrar{registry: r, resource: resource}
	resource.RegisterGameModes(registrar)
	return errors.Join(registrar.errs...)
}

// IsAvailable reports whether a mode is registered under name.
func (r *Registry) IsAvailable(name string) bool {
	_, ok := r.modes[name]
	return ok
}

// Create instantiates the mode registered under name along with the resource
// that offered it.
func (r *Registry) Create(name string) (GameMode, Resource, error) {
	reg, ok := r.modes[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrGameModeNotAvailable, name)
	}
	return reg.factory(), reg.resource, nil
}

// Names lists the registered modes in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modes))
	for name := range r.modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type resourceRegistrar struct {
	registry *Registry
	resource Resource
	errs     []error
}

func (rr *resourceRegistrar) Register(name string, factory Factory) {
	if existing, ok := rr.registry.modes[name]; ok {
		rr.errs = append(rr.errs, fmt.Errorf("%w: %s (by %s)", ErrDuplicateGameMode, name, existing.resource.Name()))
		return
	}
	rr.registry.modes[name] = registration{resource: rr.resource, factory: factory}
}
