package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Spec is a registered action: its name, argument schema and capability.
// A Spec is immutable once built.
type Spec struct {
	name        string
	description string
	schema      *jsonschema.Schema
	resolved    *jsonschema.Resolved
	annotations Annotations
	capability  Capability
}

// Name returns the stable identifier the model uses to select the spec.
func (s *Spec) Name() string {
	return s.name
}

// Description returns the text shown to the model.
func (s *Spec) Description() string {
	return s.description
}

// Schema returns the argument schema.
func (s *Spec) Schema() *jsonschema.Schema {
	return s.schema
}

// Annotations returns the spec annotations.
func (s *Spec) Annotations() Annotations {
	return s.annotations
}

// IsTerminal returns true if dispatching the spec ends the run.
func (s *Spec) IsTerminal() bool {
	return s.annotations.Terminal
}

// Prepare validates raw arguments against the resolved schema and returns
// them with defaults applied.
func (s *Spec) Prepare(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: arguments must be a JSON object: %v", ErrInvalidArgs, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	if s.resolved != nil {
		if err := s.resolved.ApplyDefaults(&args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
		if err := s.resolved.Validate(args); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
	}
	out, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	return out, nil
}

// Execute runs the capability.
func (s *Spec) Execute(ctx context.Context, call Call) (Result, error) {
	if s.capability == nil {
		return Result{}, ErrNoCapability
	}
	return s.capability.Execute(ctx, call)
}

// Builder provides a fluent API for constructing specs.
type Builder struct {
	spec     *Spec
	defaults map[string]any
	err      error
}

// NewBuilder creates a new spec builder with the given name.
func NewBuilder(name string) *Builder {
	return &Builder{spec: &Spec{name: name}}
}

// For creates a builder whose argument schema is derived from A and whose
// capability receives the decoded arguments.
func For[A any](name string, fn func(ctx context.Context, call Call, args A) (Result, error)) *Builder {
	b := NewBuilder(name)
	schema, err := jsonschema.For[A](&jsonschema.ForOptions{})
	if err != nil {
		b.err = errors.Join(ErrInvalidSchema, err)
		return b
	}
	b.spec.schema = schema
	b.spec.capability = CapabilityFunc(func(ctx context.Context, call Call) (Result, error) {
		var args A
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
		}
		return fn(ctx, call, args)
	})
	return b
}

// WithDescription sets the description.
func (b *Builder) WithDescription(desc string) *Builder {
	if b.err != nil {
		return b
	}
	b.spec.description = desc
	return b
}

// WithSchema sets the argument schema explicitly.
func (b *Builder) WithSchema(schema *jsonschema.Schema) *Builder {
	if b.err != nil {
		return b
	}
	b.spec.schema = schema
	return b
}

// WithDefault sets the default value of an argument.
func (b *Builder) WithDefault(arg string, value any) *Builder {
	if b.err != nil {
		return b
	}
	if b.defaults == nil {
		b.defaults = make(map[string]any)
	}
	b.defaults[arg] = value
	return b
}

// WithCapability sets the capability.
func (b *Builder) WithCapability(c Capability) *Builder {
	if b.err != nil {
		return b
	}
	b.spec.capability = c
	return b
}

// ReadOnly marks the spec as free of side effects.
func (b *Builder) ReadOnly() *Builder {
	if b.err != nil {
		return b
	}
	b.spec.annotations.ReadOnly = true
	return b
}

// Cacheable marks successful results as cacheable.
func (b *Builder) Cacheable() *Builder {
	if b.err != nil {
		return b
	}
	b.spec.annotations.Cacheable = true
	return b
}

// Terminal marks the spec as the one that ends a run.
func (b *Builder) Terminal() *Builder {
	if b.err != nil {
		return b
	}
	b.spec.annotations.Terminal = true
	return b
}

// UpdatesState marks the spec as returning state deltas.
func (b *Builder) UpdatesState() *Builder {
	if b.err != nil {
		return b
	}
	b.spec.annotations.UpdatesState = true
	return b
}

// WithTags adds tags to the spec.
func (b *Builder) WithTags(tags ...string) *Builder {
	if b.err != nil {
		return b
	}
	b.spec.annotations.Tags = append(b.spec.annotations.Tags, tags...)
	return b
}

// Build resolves the schema and returns the spec.
func (b *Builder) Build() (*Spec, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.spec.name == "" {
		return nil, ErrEmptyName
	}
	if b.spec.capability == nil {
		return nil, ErrNoCapability
	}
	if b.spec.schema == nil {
		b.spec.schema = &jsonschema.Schema{Type: "object"}
	}
	// Extra arguments are ignored rather than rejected.
	b.spec.schema.AdditionalProperties = nil
	for arg, value := range b.defaults {
		prop, ok := b.spec.schema.Properties[arg]
		if !ok {
			return nil, fmt.Errorf("%w: default for unknown argument %q", ErrInvalidSchema, arg)
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, errors.Join(ErrInvalidSchema, err)
		}
		prop.Default = raw
	}
	resolved, err := b.spec.schema.Resolve(nil)
	if err != nil {
		return nil, errors.Join(ErrInvalidSchema, err)
	}
	b.spec.resolved = resolved
	return b.spec, nil
}

// MustBuild builds the spec or panics.
func (b *Builder) MustBuild() *Spec {
	spec, err := b.Build()
	if err != nil {
		panic(err)
	}
	return spec
}
