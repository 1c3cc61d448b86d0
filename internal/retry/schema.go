package retry

import (
	"bytes"
	"encoding/json"
	"fmt"

	invopop "github.com/invopop/jsonschema"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaURL is absolute so the compiler never resolves it against the
// working directory; validation messages quote it.
const schemaURL = "mem:///schema.json"

type compiledSchema struct {
	schema *jsonschema.Schema
}

func (c compiledSchema) Validate(v any) error {
	return c.schema.Validate(v)
}

// JSONSchema compiles a JSON Schema document into a Validator.
func JSONSchema(doc []byte) (Validator, error) {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, parsed); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiledSchema{schema: sch}, nil
}

// SchemaFor reflects a JSON Schema from T's struct tags and compiles it.
// Fields without omitempty are required; enum and range constraints come
// from jsonschema tags.
func SchemaFor[T any]() (Validator, error) {
	doc, err := ReflectSchema[T]()
	if err != nil {
		return nil, err
	}
	return JSONSchema(doc)
}

// ReflectSchema returns the JSON Schema document for T.
func ReflectSchema[T any]() ([]byte, error) {
	r := &invopop.Reflector{
		Anonymous:                 true,
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(new(T))
	s.Version = ""
	s.ID = ""
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return doc, nil
}
