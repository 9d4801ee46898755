// Package jsonschema compiles JSON Schema documents and validates JSON
// values against them.
package jsonschema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ValidationErrors represents a collection of validation errors
type ValidationErrors []error

// Error implements the error interface for ValidationErrors
func (ve ValidationErrors) Error() string {
	var sb strings.Builder
	for i, err := range ve {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Schema is a compiled schema. It is safe for concurrent use.
type Schema struct {
	schema *jsonschema.Schema
}

// Compile parses and compiles a schema document. name is used as its
// resource URL in error messages.
func Compile(name string, doc []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &Schema{schema: schema}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(name string, doc []byte) *Schema {
	s, err := Compile(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// ValidateJSON validates a JSON document. A malformed document is an
// error; schema violations are returned as ValidationErrors.
func (s *Schema) ValidateJSON(doc []byte) error {
	var value any
	dec := json.NewDecoder(bytes.NewReader(doc))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return s.Validate(value)
}

// Validate validates a decoded JSON value (maps, slices, strings, bools,
// float64 or json.Number).
func (s *Schema) Validate(value any) error {
	err := s.schema.Validate(value)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		if errs := leafErrors(ve); len(errs) > 0 {
			return errs
		}
	}
	return ValidationErrors{err}
}

// leafErrors flattens the cause tree. Only leaves are reported; inner
// nodes repeat "doesn't validate with ..." for each ancestor.
func leafErrors(err *jsonschema.ValidationError) ValidationErrors {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return ValidationErrors{fmt.Errorf("%s: %s", loc, err.Message)}
	}

	var out ValidationErrors
	for _, cause := range err.Causes {
		out = append(out, leafErrors(cause)...)
	}
	return out
}

// Validate validates a JSON document against a schema document.
func Validate(doc, schemaDoc []byte) error {
	s, err := Compile("schema.json", schemaDoc)
	if err != nil {
		return err
	}
	return s.ValidateJSON(doc)
}
