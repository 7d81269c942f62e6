package tool

import (
	"encoding/json"
	"fmt"
	"strings"
)

// catalogSchema is the argument schema as shown to the model.
type catalogSchema struct {
	Arguments map[string]catalogArg `json:"arguments"`
	Required  []string              `json:"required"`
}

type catalogArg struct {
	Type        any             `json:"type,omitempty"`
	Description string          `json:"description,omitempty"`
	Default     json.RawMessage `json:"default,omitempty"`
	Enum        []any           `json:"enum,omitempty"`
	Items       any             `json:"items,omitempty"`
}

// Catalog renders the registry as a numbered list for the system prompt:
//
//	1. "name": description
//	args json schema:
//	{...}
func (r *Registry) Catalog() string {
	var b strings.Builder
	for i, s := range r.Specs() {
		fmt.Fprintf(&b, "%d. %q: %s\nargs json schema:\n%s\n\n", i+1, s.Name(), strings.TrimSpace(s.Description()), s.catalogJSON())
	}
	return b.String()
}

func (s *Spec) catalogJSON() string {
	cs := catalogSchema{Arguments: map[string]catalogArg{}, Required: []string{}}
	if s.schema != nil {
		for name, prop := range s.schema.Properties {
			arg := catalogArg{Description: prop.Description, Default: prop.Default, Enum: prop.Enum}
			if prop.Type != "" {
				arg.Type = prop.Type
			} else if len(prop.Types) > 0 {
				arg.Type = prop.Types
			}
			if prop.Items != nil {
				arg.Items = prop.Items
			}
			cs.Arguments[name] = arg
		}
		if s.schema.Required != nil {
			cs.Required = s.schema.Required
		}
	}
	data, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
