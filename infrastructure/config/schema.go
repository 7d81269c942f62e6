package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"gopkg.in/yaml.v3"

	domainconfig "github.com/felixgeelhaar/repoagent/domain/config"
)

// SchemaVersion is the JSON Schema dialect of the generated schema.
const SchemaVersion = "https://json-schema.org/draft/2020-12/schema"

var (
	schemaOnce     sync.Once
	schemaResolved *jsonschema.Resolved
	schemaErr      error
)

// GenerateSchema derives the JSON Schema of the configuration file from the
// configuration types.
func GenerateSchema() (*jsonschema.Schema, error) {
	s, err := jsonschema.For[domainconfig.AgentConfig](&jsonschema.ForOptions{
		TypeSchemas: map[reflect.Type]*jsonschema.Schema{
			reflect.TypeFor[domainconfig.Duration](): {
				Type:        "string",
				Description: "Go duration such as 500ms, 30s or 2m",
				Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generate schema: %w", err)
	}

	s.Schema = SchemaVersion
	s.Title = "Repository Agent Configuration"
	s.Description = "Configuration for the repository explorer and planner agents"

	enum(s, []string{"openai", "anthropic", "scripted"}, "model", "provider")
	enum(s, []string{"none", "memory", "badger", "redis"}, "cache", "driver")
	enum(s, []string{"memory", "file", "sqlite"}, "storage", "driver")
	enum(s, []string{"trace", "debug", "info", "warn", "error"}, "logging", "level")
	enum(s, []string{"json", "console"}, "logging", "format")
	enum(s, []string{"none", "stdout", "otlp"}, "observability", "exporter")
	return s, nil
}

func enum(s *jsonschema.Schema, values []string, path ...string) {
	for _, p := range path {
		if s == nil || s.Properties == nil {
			return
		}
		s = s.Properties[p]
	}
	if s == nil {
		return
	}
	s.Enum = make([]any, len(values))
	for i, v := range values {
		s.Enum[i] = v
	}
}

// SchemaJSON returns the schema as indented JSON.
func SchemaJSON() (string, error) {
	s, err := GenerateSchema()
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema: %w", err)
	}
	return string(data), nil
}

func resolvedSchema() (*jsonschema.Resolved, error) {
	schemaOnce.Do(func() {
		s, err := GenerateSchema()
		if err != nil {
			schemaErr = err
			return
		}
		schemaResolved, schemaErr = s.Resolve(nil)
	})
	return schemaResolved, schemaErr
}

// ValidateDocument checks a raw configuration document against the schema.
// Unlike Load it rejects unknown keys in YAML documents too.
func ValidateDocument(data []byte, format Format) error {
	var doc any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("%w: %v", domainconfig.ErrInvalidFormat, err)
		}
		// Normalize YAML scalars to their JSON representation.
		normalized, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("%w: %v", domainconfig.ErrInvalidFormat, err)
		}
		doc = nil
		if err := json.Unmarshal(normalized, &doc); err != nil {
			return fmt.Errorf("%w: %v", domainconfig.ErrInvalidFormat, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("%w: %v", domainconfig.ErrInvalidFormat, err)
		}
	default:
		return fmt.Errorf("%w: %s", domainconfig.ErrUnsupportedFormat, format)
	}

	rs, err := resolvedSchema()
	if err != nil {
		return err
	}
	if err := rs.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", domainconfig.ErrValidationFailed, err)
	}
	return nil
}
