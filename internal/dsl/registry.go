package dsl

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/roach88/pipekit/internal/ir"
)

// ErrComponentAlreadyRegistered is returned when a name is registered twice.
var ErrComponentAlreadyRegistered = errors.New("component already registered")

// Func is the body of a component. A nil return value means the component
// produced no output, whatever its declared return type.
type Func func(ctx context.Context, in *Inputs) (ir.Value, error)

// Component wraps a Func with the metadata the compiler and runner need.
type Component struct {
	Name        string
	Description string
	Params      []ir.ParamSpec
	Returns     string
	Fn          Func
}

// Param declares a plain value parameter.
func Param(name, typ string) ir.ParamSpec {
	return ir.ParamSpec{Name: name, Type: typ, Kind: ir.KindParameter}
}

// InputArtifact declares a read-only artifact parameter.
func InputArtifact(name string) ir.ParamSpec {
	return ir.ParamSpec{Name: name, Type: ir.TypeArtifact, Kind: ir.KindInput}
}

// OutputArtifact declares a writable artifact parameter.
func OutputArtifact(name string) ir.ParamSpec {
	return ir.ParamSpec{Name: name, Type: ir.TypeArtifact, Kind: ir.KindOutput}
}

// Spec returns the component's declaration without its body.
func (c Component) Spec() ir.ComponentSpec {
	params := make([]ir.ParamSpec, len(c.Params))
	copy(params, c.Params)
	return ir.ComponentSpec{
		Name:        c.Name,
		Description: c.Description,
		Params:      params,
		Returns:     c.Returns,
	}
}

// Validate checks the declaration is well formed.
func (c Component) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("component name is required")
	}
	if c.Fn == nil {
		return fmt.Errorf("component %q has no function", c.Name)
	}
	if c.Returns != "" && !ir.ValidTypes[c.Returns] {
		return fmt.Errorf("component %q: invalid return type %q", c.Name, c.Returns)
	}
	seen := make(map[string]bool, len(c.Params))
	for _, p := range c.Params {
		if p.Name == "" {
			return fmt.Errorf("component %q: parameter name is required", c.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("component %q: duplicate parameter %q", c.Name, p.Name)
		}
		seen[p.Name] = true
		if !ir.ValidKinds[p.Kind] {
			return fmt.Errorf("component %q: parameter %q has invalid kind %q", c.Name, p.Name, p.Kind)
		}
		if !ir.ValidTypes[p.Type] {
			return fmt.Errorf("component %q: parameter %q has invalid type %q", c.Name, p.Name, p.Type)
		}
		if p.IsArtifact() != (p.Type == ir.TypeArtifact) {
			return fmt.Errorf("component %q: parameter %q: artifact kinds require the artifact type", c.Name, p.Name)
		}
	}
	return nil
}

// Registry holds component implementations keyed by name.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]Component)}
}

// Register adds a component.
// Returns an error if the declaration is invalid or the name is taken.
func (r *Registry) Register(c Component) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid component: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.components[c.Name]; exists {
		return fmt.Errorf("%w: %s", ErrComponentAlreadyRegistered, c.Name)
	}
	r.components[c.Name] = c
	return nil
}

// MustRegister registers a component and panics on error.
// Use this for static registration at init time.
func (r *Registry) MustRegister(c Component) {
	if err := r.Register(c); err != nil {
		panic(fmt.Sprintf("failed to register component %s: %v", c.Name, err))
	}
}

// Lookup returns the component with the given name.
func (r *Registry) Lookup(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.components))
	for name := range r.components {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Specs returns the declarations of all registered components, sorted by name.
func (r *Registry) Specs() []ir.ComponentSpec {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]ir.ComponentSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.components[name].Spec())
	}
	return specs
}
