// Package pack provides reusable collections of tool specs.
package pack

import (
	"fmt"

	"github.com/felixgeelhaar/repoagent/domain/tool"
)

// Pack is a named collection of related specs.
type Pack struct {
	// Name is the unique identifier for the pack.
	Name string

	// Description explains what the pack provides.
	Description string

	// Version is the semantic version of the pack.
	Version string

	// Specs is the collection of specs in this pack.
	Specs []*tool.Spec

	// Dependencies lists other packs that must be installed alongside.
	Dependencies []string
}

// SpecNames returns the names of all specs in the pack.
func (p *Pack) SpecNames() []string {
	names := make([]string, len(p.Specs))
	for i, s := range p.Specs {
		names[i] = s.Name()
	}
	return names
}

// Spec returns a spec by name from the pack.
func (p *Pack) Spec(name string) (*tool.Spec, bool) {
	for _, s := range p.Specs {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Select returns a pack restricted to the named specs, in the given order.
func (p *Pack) Select(names ...string) (*Pack, error) {
	out := &Pack{
		Name:         p.Name,
		Description:  p.Description,
		Version:      p.Version,
		Dependencies: p.Dependencies,
	}
	for _, name := range names {
		s, ok := p.Spec(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s has no spec %q", ErrInvalidPack, p.Name, name)
		}
		out.Specs = append(out.Specs, s)
	}
	return out, nil
}

// Registry composes packs into a frozen tool registry. Dependencies must be
// among the given packs.
func Registry(packs ...*Pack) (*tool.Registry, error) {
	names := make(map[string]bool, len(packs))
	for _, p := range packs {
		if names[p.Name] {
			return nil, fmt.Errorf("%w: %s", ErrPackExists, p.Name)
		}
		names[p.Name] = true
	}

	reg, err := tool.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, p := range packs {
		for _, dep := range p.Dependencies {
			if !names[dep] {
				return nil, fmt.Errorf("%w: %s requires %s", ErrDependencyNotFound, p.Name, dep)
			}
		}
		for _, s := range p.Specs {
			if err := reg.Register(s); err != nil {
				return nil, fmt.Errorf("pack %s: %s: %w", p.Name, s.Name(), err)
			}
		}
	}
	reg.Freeze()
	return reg, nil
}

// Builder provides a fluent API for constructing packs.
type Builder struct {
	pack *Pack
}

// NewBuilder creates a new pack builder.
func NewBuilder(name string) *Builder {
	return &Builder{pack: &Pack{Name: name}}
}

// WithDescription sets the pack description.
func (b *Builder) WithDescription(desc string) *Builder {
	b.pack.Description = desc
	return b
}

// WithVersion sets the pack version.
func (b *Builder) WithVersion(version string) *Builder {
	b.pack.Version = version
	return b
}

// AddSpecs adds specs to the pack.
func (b *Builder) AddSpecs(specs ...*tool.Spec) *Builder {
	b.pack.Specs = append(b.pack.Specs, specs...)
	return b
}

// WithDependency adds a dependency on another pack.
func (b *Builder) WithDependency(name string) *Builder {
	b.pack.Dependencies = append(b.pack.Dependencies, name)
	return b
}

// Build returns the constructed pack.
func (b *Builder) Build() *Pack {
	return b.pack
}
