package stage

import (
	"fmt"
	"sort"
)

// Factory builds a variant from a creation payload. It checks only the
// arguments construction cannot do without; every key is applied afterwards.
type Factory func(data Patch) (Variant, error)

// Registry maps type tags to factories. It is filled once at startup and
// shared read-only by every manager in the process.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in variant.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	builtins := []struct {
		name    string
		factory Factory
	}{
		{TypeImage, newImage},
		{TypeText, newText},
		{TypePanel, newPanel},
		{TypeProgressBar, newProgressBar},
		{TypeProgressClock, newProgressClock},
		{TypeResourceBar, newResourceBar},
		{TypeResourceClock, newResourceClock},
		{TypeDialogue, newDialogue},
		{TypeActor, newActor},
	}
	for _, b := range builtins {
		if err := r.Register(b.name, b.factory); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a factory for name. Registering the same name twice fails
// with ErrDuplicateType.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || factory == nil {
		return fmt.Errorf("%w: type name and factory are required", ErrInvalidValue)
	}
	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, name)
	}
	r.factories[name] = factory
	return nil
}

func (r *Registry) Lookup(name string) (Factory, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredType, name)
	}
	return factory, nil
}

func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs a detached object of type typ: the factory runs first,
// then every present key of p is applied. A failure leaves nothing behind.
func (r *Registry) Build(typ string, p Patch) (*Object, error) {
	factory, err := r.Lookup(typ)
	if err != nil {
		return nil, err
	}
	if err := validatePatch(p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = NewID()
	}
	variant, err := factory(p)
	if err != nil {
		return nil, err
	}
	if variant.Type() != typ {
		return nil, fmt.Errorf("%w: factory for %q built %q", ErrInvalidValue, typ, variant.Type())
	}
	obj := newObject(p.ID, variant)
	if _, err := obj.apply(p); err != nil {
		return nil, err
	}
	return obj, nil
}

// Decode constructs a detached object from a full wire or storage payload.
func (r *Registry) Decode(data Serialized) (*Object, error) {
	return r.Build(data.Type, PatchFrom(data))
}
