// SPDX-License-Identifier: Apache-2.0

package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// payloadSchemas holds the JSON Schema text for each event kind's wire
// payload, matching the shapes documented in spec.md's "Event wire
// payloads" section. These are compiled lazily and reused across calls.
var payloadSchemas = map[Type]string{
	TypeCreate: `{
		"type": "object",
		"required": ["fields"],
		"properties": {"fields": {"type": "object"}}
	}`,
	TypeUpdate: `{
		"type": "object",
		"properties": {
			"fields": {"type": "object"},
			"list_fields": {
				"type": "object",
				"properties": {
					"add": {"type": "object"},
					"remove": {"type": "object"}
				}
			}
		}
	}`,
	TypeDeleteFields: `{
		"type": "object",
		"required": ["fields"],
		"properties": {"fields": {"type": "array", "items": {"type": "string"}}}
	}`,
	TypeListUpdate: `{
		"type": "object",
		"properties": {
			"add": {"type": "object"},
			"remove": {"type": "object"}
		}
	}`,
	TypeDelete:  `{"type": "object"}`,
	TypeRestore: `{"type": "object"}`,
}

var (
	compileOnce sync.Once
	compiled    map[Type]*jsonschema.Schema
	compileErr  error
)

func compiledSchemas() (map[Type]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled = make(map[Type]*jsonschema.Schema, len(payloadSchemas))
		for typ, src := range payloadSchemas {
			c := jsonschema.NewCompiler()
			url := fmt.Sprintf("mem://event/%s.json", typ)
			var doc any
			if err := json.Unmarshal([]byte(src), &doc); err != nil {
				compileErr = fmt.Errorf("parsing schema for %q: %w", typ, err)
				return
			}
			if err := c.AddResource(url, doc); err != nil {
				compileErr = fmt.Errorf("registering schema for %q: %w", typ, err)
				return
			}
			sch, err := c.Compile(url)
			if err != nil {
				compileErr = fmt.Errorf("compiling schema for %q: %w", typ, err)
				return
			}
			compiled[typ] = sch
		}
	})
	return compiled, compileErr
}

// Validate checks a raw wire payload against the JSON Schema for typ.
// This is a boundary concern for external callers constructing events
// from untrusted input; the migrator never calls it on events it
// produces itself.
func Validate(typ Type, payload json.RawMessage) error {
	schemas, err := compiledSchemas()
	if err != nil {
		return err
	}
	sch, ok := schemas[typ]
	if !ok {
		return BadCodingError{Reason: fmt.Sprintf("no schema registered for event type %q", typ)}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decoding payload for %q: %w", typ, err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("payload for %q failed validation: %w", typ, err)
	}
	return nil
}
