package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	ErrSchemaInvalid    = errors.New("schema invalid")
	ErrSchemaValidation = errors.New("schema validation failed")
)

// ValidationIssue captures a single validation failure.
type ValidationIssue struct {
	Location string
	Message  string
}

// PayloadValidationError surfaces validation issues with schema-aware context.
type PayloadValidationError struct {
	EntityType string
	Issues     []ValidationIssue
	Cause      error
}

func (e *PayloadValidationError) Error() string {
	prefix := ""
	if e.EntityType != "" {
		prefix = e.EntityType + ": "
	}
	if len(e.Issues) == 0 {
		if e.Cause != nil {
			return prefix + e.Cause.Error()
		}
		return prefix + ErrSchemaValidation.Error()
	}
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		location := strings.TrimSpace(issue.Location)
		if location == "" {
			location = "#"
		} else if !strings.HasPrefix(location, "#") {
			location = "#" + location
		}
		if issue.Message == "" {
			parts = append(parts, location)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", location, issue.Message))
	}
	return prefix + strings.Join(parts, "; ")
}

func (e *PayloadValidationError) Unwrap() error {
	return ErrSchemaValidation
}

// Issues extracts validation issues from an error.
func Issues(err error) []ValidationIssue {
	if err == nil {
		return nil
	}
	var payloadErr *PayloadValidationError
	if errors.As(err, &payloadErr) && payloadErr != nil {
		return payloadErr.Issues
	}
	var validationErr *jsonschema.ValidationError
	if errors.As(err, &validationErr) && validationErr != nil {
		return collectValidationIssues(validationErr)
	}
	return []ValidationIssue{{Message: err.Error()}}
}

// SchemaRegistry holds one compiled JSON schema per entity type. Types with
// no registered schema validate trivially: payloads stay opaque unless the
// host application opts a type in.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

// NewSchemaRegistry constructs an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles and stores the schema for an entity type, replacing any
// previous registration.
func (r *SchemaRegistry) Register(entityType string, schema map[string]any) error {
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return fmt.Errorf("%w: entity type required", ErrSchemaInvalid)
	}
	compiled, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaInvalid, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[entityType] = compiled
	return nil
}

// Unregister removes the schema for an entity type.
func (r *SchemaRegistry) Unregister(entityType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.schemas, entityType)
}

// ValidatePayload checks a payload against the schema registered for its
// entity type. Unregistered types pass.
func (r *SchemaRegistry) ValidatePayload(entityType string, payload map[string]any) error {
	r.mu.RLock()
	compiled, ok := r.schemas[entityType]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	if payload == nil {
		payload = map[string]any{}
	}
	// Round-trip through JSON so in-process values (ints, typed slices)
	// validate the same way values read back from storage do.
	normalized, err := normalizePayload(payload)
	if err != nil {
		return &PayloadValidationError{EntityType: entityType, Cause: err}
	}
	if err := compiled.Validate(normalized); err != nil {
		return &PayloadValidationError{
			EntityType: entityType,
			Issues:     Issues(err),
			Cause:      err,
		}
	}
	return nil
}

func normalizePayload(payload map[string]any) (any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var normalized any
	if err := json.Unmarshal(encoded, &normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, errors.New("schema is empty")
	}
	encoded, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	if err := compiler.AddResource("schema.json", bytes.NewReader(encoded)); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func collectValidationIssues(err *jsonschema.ValidationError) []ValidationIssue {
	if err == nil {
		return nil
	}
	issues := []ValidationIssue{}
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if node == nil {
			return
		}
		if len(node.Causes) == 0 {
			issues = append(issues, ValidationIssue{
				Location: strings.TrimSpace(node.InstanceLocation),
				Message:  strings.TrimSpace(node.Message),
			})
			return
		}
		for _, cause := range node.Causes {
			walk(cause)
		}
	}
	walk(err)
	return issues
}
