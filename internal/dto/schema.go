package dto

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema names bundled with the service.
const (
	SchemaStudentCreate = "student_create"
	SchemaStudentUpdate = "student_update"
	SchemaStudent       = "student"
)

//go:embed schemas/*.schema.json
var schemaFiles embed.FS

// ErrMalformedJSON reports a body that is not valid JSON.
var ErrMalformedJSON = errors.New("malformed json body")

// SchemaError lists the reasons a document failed schema validation.
type SchemaError struct {
	Schema  string
	Details []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("payload does not match %s schema: %s", e.Schema, strings.Join(e.Details, "; "))
}

// Schemas holds the compiled JSON schemas for request and response bodies.
type Schemas struct {
	compiled map[string]*jsonschema.Schema
}

// LoadSchemas compiles every embedded schema.
func LoadSchemas() (*Schemas, error) {
	entries, err := schemaFiles.ReadDir("schemas")
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		data, err := schemaFiles.ReadFile("schemas/" + entry.Name())
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(entry.Name(), ".schema.json")
		if err := compiler.AddResource(schemaURL(name), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
		names = append(names, name)
	}

	compiled := make(map[string]*jsonschema.Schema, len(names))
	for _, name := range names {
		schema, err := compiler.Compile(schemaURL(name))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		compiled[name] = schema
	}

	return &Schemas{compiled: compiled}, nil
}

// MustLoadSchemas is LoadSchemas for process start-up and tests.
func MustLoadSchemas() *Schemas {
	schemas, err := LoadSchemas()
	if err != nil {
		panic(err)
	}
	return schemas
}

// Validate checks a raw JSON document against the named schema.
func (s *Schemas) Validate(name string, body []byte) error {
	schema, ok := s.compiled[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	var document interface{}
	if err := json.Unmarshal(body, &document); err != nil {
		return ErrMalformedJSON
	}

	if err := schema.Validate(document); err != nil {
		var validationErr *jsonschema.ValidationError
		if errors.As(err, &validationErr) {
			return &SchemaError{Schema: name, Details: leafMessages(validationErr)}
		}
		return err
	}

	return nil
}

func leafMessages(err *jsonschema.ValidationError) []string {
	seen := make(map[string]struct{})
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if len(node.Causes) == 0 {
			location := node.InstanceLocation
			if location == "" {
				location = "/"
			}
			seen[location+": "+node.Message] = struct{}{}
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(err)

	messages := make([]string, 0, len(seen))
	for message := range seen {
		messages = append(messages, message)
	}
	sort.Strings(messages)
	return messages
}

func schemaURL(name string) string {
	return "https://roster.local/schemas/" + name + ".schema.json"
}
