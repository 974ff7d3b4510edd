// pkg/registry/registry.go
package registry

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrActivityNotFound = errors.New("ACTIVITY_NOT_FOUND")
	ErrInvalidRegistry  = errors.New("INVALID_REGISTRY")
)

//go:embed activities.json
var embedded []byte

// Default returns the registry compiled into the binary.
func Default() (*ActivityRegistry, error) {
	return Parse(embedded)
}

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*ActivityRegistry, error) {
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	return &reg, nil
}

// Find looks an activity up by task type, falling back to its id.
func (r *ActivityRegistry) Find(taskType string) (*Activity, error) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], nil
		}
	}
	for i := range r.Activities {
		if r.Activities[i].ID == taskType {
			return &r.Activities[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrActivityNotFound, taskType)
}

// Validate checks the structural rules every registry file must satisfy,
// including that each input schema compiles.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("%w: registry contains no activities", ErrInvalidRegistry)
	}

	ids := make(map[string]bool)
	for _, activity := range r.Activities {
		if activity.ID == "" {
			return fmt.Errorf("%w: activity missing required field: ID", ErrInvalidRegistry)
		}
		if ids[activity.ID] {
			return fmt.Errorf("%w: duplicate activity ID: %s", ErrInvalidRegistry, activity.ID)
		}
		ids[activity.ID] = true

		if activity.DisplayName == "" {
			return fmt.Errorf("%w: activity %s missing required field: DisplayName", ErrInvalidRegistry, activity.ID)
		}
		if activity.TaskType == "" {
			return fmt.Errorf("%w: activity %s missing required field: TaskType", ErrInvalidRegistry, activity.ID)
		}
		if activity.Category == "" {
			return fmt.Errorf("%w: activity %s missing required field: Category", ErrInvalidRegistry, activity.ID)
		}
		if len(activity.InputSchema) > 0 {
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(activity.InputSchema)); err != nil {
				return fmt.Errorf("%w: activity %s input schema: %v", ErrInvalidRegistry, activity.ID, err)
			}
		}
	}
	return nil
}

// ValidateInput checks job variables against the activity's input schema.
// An activity without a schema accepts anything.
func (a *Activity) ValidateInput(variables map[string]interface{}) ([]SchemaViolation, error) {
	if len(a.InputSchema) == 0 {
		return nil, nil
	}

	schemaLoader := gojsonschema.NewGoLoader(a.InputSchema)
	documentLoader := gojsonschema.NewGoLoader(variables)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]SchemaViolation, len(result.Errors()))
	for i, desc := range result.Errors() {
		violations[i] = SchemaViolation{
			Field:   desc.Field(),
			Message: desc.Description(),
		}
	}
	return violations, nil
}

// Summarize joins violations into a single line for error details.
func Summarize(violations []SchemaViolation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return strings.Join(parts, "; ")
}
