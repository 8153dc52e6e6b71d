package protocol

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema file names under schemas/.
const (
	SchemaHello      = "hello.schema.json"
	SchemaIntent     = "intent.schema.json"
	SchemaEventBatch = "event_batch.schema.json"
	SchemaDecision   = "decision.schema.json"
	SchemaReflection = "reflection.schema.json"
)

// Schemas holds the compiled wire schemas. Compiled schemas are safe for concurrent use.
type Schemas struct {
	byName map[string]*jsonschema.Schema
}

func LoadSchemas() (*Schemas, error) {
	names := []string{SchemaHello, SchemaIntent, SchemaEventBatch, SchemaDecision, SchemaReflection}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	for _, n := range names {
		b, err := schemaFS.ReadFile("schemas/" + n)
		if err != nil {
			return nil, err
		}
		if err := c.AddResource(n, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", n, err)
		}
	}
	s := &Schemas{byName: make(map[string]*jsonschema.Schema, len(names))}
	for _, n := range names {
		sch, err := c.Compile(n)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", n, err)
		}
		s.byName[n] = sch
	}
	return s, nil
}

// Validate checks raw JSON against the named schema.
func (s *Schemas) Validate(name string, raw []byte) error {
	sch := s.byName[name]
	if sch == nil {
		return fmt.Errorf("unknown schema %q", name)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return sch.Validate(v)
}
