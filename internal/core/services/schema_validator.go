package services

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/manthysbr/grabagent/internal/core/domain"
)

// SchemaValidator checks tool arguments against the tool's JSON schema using
// the kin-openapi schema validator. Compiled schemas are cached per tool.
// A schema that cannot be compiled disables validation for that tool.
type SchemaValidator struct {
	logger  *slog.Logger
	mu      sync.RWMutex
	schemas map[string]*openapi3.Schema
}

func NewSchemaValidator(logger *slog.Logger) *SchemaValidator {
	return &SchemaValidator{
		logger:  logger,
		schemas: make(map[string]*openapi3.Schema),
	}
}

// ValidateArgs implements domain.ArgumentValidator.
func (v *SchemaValidator) ValidateArgs(tool domain.ToolDescriptor, args map[string]any) error {
	schema := v.compiled(tool)
	if schema == nil {
		return nil
	}
	// Round-trip so numbers and nested values have the JSON decoder's types.
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return schema.VisitJSON(value, openapi3.MultiErrors())
}

func (v *SchemaValidator) compiled(tool domain.ToolDescriptor) *openapi3.Schema {
	v.mu.RLock()
	s, ok := v.schemas[tool.Name]
	v.mu.RUnlock()
	if ok {
		return s
	}

	s = compileSchema(tool.Schema)
	if s == nil && len(tool.Schema) > 0 {
		v.logger.Warn("tool schema not usable for validation", "tool", tool.Name)
	}

	v.mu.Lock()
	v.schemas[tool.Name] = s
	v.mu.Unlock()
	return s
}

func compileSchema(raw map[string]any) *openapi3.Schema {
	if len(raw) == 0 {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var s openapi3.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return &s
}
