// Package descriptor defines the wire schema for server-exposed callable
// functions: parameter descriptors, function descriptors, and the discovery
// document that carries them.
package descriptor

import (
	"encoding/json"
	"fmt"
)

// Parameter type vocabulary. Dict and list are the "complex" types: their
// values travel as structured JSON, or as JSON-encoded strings when they
// originate from free-form text input.
const (
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeString = "string"
	TypeDict   = "dict"
	TypeList   = "list"
)

// Parameter describes one input to a callable function.
type Parameter struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Required    bool          `json:"required"`
	Default     interface{}   `json:"default,omitempty"`
	Choices     []interface{} `json:"choices,omitempty"`
	Description string        `json:"description,omitempty"`
}

// IsComplex reports whether the parameter's declared type carries
// structured JSON.
func (p *Parameter) IsComplex() bool {
	return p.Type == TypeDict || p.Type == TypeList
}

// Function describes one remotely invokable operation. Name doubles as the
// identity key and the invocation path ("/{name}"). Parameter order matters
// only for display; wire encoding is always name-keyed.
type Function struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  []Parameter `json:"parameters"`
	HTTPMethods []string    `json:"http_methods"`
}

// Param returns the parameter with the given name, or nil.
func (f *Function) Param(name string) *Parameter {
	for i := range f.Parameters {
		if f.Parameters[i].Name == name {
			return &f.Parameters[i]
		}
	}
	return nil
}

// Validate checks the descriptor itself is well formed. A function with
// zero parameters is valid.
func (f *Function) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("function descriptor has no name")
	}
	if len(f.HTTPMethods) == 0 {
		return fmt.Errorf("function %q declares no http methods", f.Name)
	}
	seen := make(map[string]bool, len(f.Parameters))
	for i := range f.Parameters {
		p := &f.Parameters[i]
		if p.Name == "" {
			return fmt.Errorf("function %q has an unnamed parameter", f.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("function %q declares parameter %q twice", f.Name, p.Name)
		}
		seen[p.Name] = true
		switch p.Type {
		case TypeInt, TypeFloat, TypeBool, TypeString, TypeDict, TypeList:
		default:
			return fmt.Errorf("function %q parameter %q has unknown type %q", f.Name, p.Name, p.Type)
		}
	}
	return nil
}

// Document is the discovery payload: the full set of function descriptors
// the server exposes, keyed by name. APIVersion is optional; when present
// the registry client checks it against the supported range.
type Document struct {
	APIVersion string              `json:"apiVersion,omitempty"`
	Functions  map[string]Function `json:"functions"`
}

// ParseDocument decodes and sanity-checks a discovery payload. Descriptors
// whose map key disagrees with their embedded name take the map key, since
// the key is what invocation paths are derived from.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed discovery payload: %w", err)
	}
	if doc.Functions == nil {
		return nil, fmt.Errorf("discovery payload has no functions field")
	}
	for name, fn := range doc.Functions {
		if fn.Name != name {
			fn.Name = name
			doc.Functions[name] = fn
		}
		if err := fn.Validate(); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}
