package plugin

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidateSettings checks settings against a plugin's manifest-declared
// SettingsSchema (a JSON Schema document). A manifest with no schema always
// passes; settings with no value is treated as an empty object so plugins
// can declare required fields.
func ValidateSettings(schema, settings json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	if len(settings) == 0 {
		settings = json.RawMessage("{}")
	}

	schemaLoader := gojsonschema.NewBytesLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(settings)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return fmt.Errorf("invalid settings schema: %w", err)
	}
	if result.Valid() {
		return nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, e.String())
	}
	return &SettingsValidationError{Errors: errs}
}

// SettingsValidationError reports the individual JSON Schema violations
// found in a plugin's settings bag.
type SettingsValidationError struct {
	Errors []string
}

func (e *SettingsValidationError) Error() string {
	return fmt.Sprintf("settings validation failed: %v", e.Errors)
}
