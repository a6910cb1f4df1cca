package job

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrUnknownKind is returned for a job kind with no registered payload schema.
var ErrUnknownKind = errors.New("unknown job kind")

// SchemaRegistry validates job payloads against the JSON Schema of their kind.
type SchemaRegistry struct {
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry compiles every embedded schemas/<kind>.json file.
func NewSchemaRegistry() (*SchemaRegistry, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	kinds := make([]string, 0, len(entries))
	for _, e := range entries {
		kind := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		b, err := schemaFS.ReadFile("schemas/" + e.Name())
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", kind, err)
		}
		if err := compiler.AddResource(kind+".json", bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", kind, err)
		}
		kinds = append(kinds, kind)
	}

	r := &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema, len(kinds))}
	for _, kind := range kinds {
		s, err := compiler.Compile(kind + ".json")
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", kind, err)
		}
		r.schemas[kind] = s
	}
	return r, nil
}

// MustNewSchemaRegistry panics if the embedded schemas do not compile.
func MustNewSchemaRegistry() *SchemaRegistry {
	r, err := NewSchemaRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// Known reports whether kind has a registered schema.
func (r *SchemaRegistry) Known(kind string) bool {
	_, ok := r.schemas[kind]
	return ok
}

// Validate checks payload against the schema registered for kind.
func (r *SchemaRegistry) Validate(kind string, payload []byte) error {
	s, ok := r.schemas[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("payload does not match %s schema: %w", kind, err)
	}
	return nil
}
