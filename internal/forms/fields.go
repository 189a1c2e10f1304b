package forms

import (
	"encoding/json"
	"fmt"

	"github.com/formloom/formloom/internal/database/models"
)

// Field is one entry of a form's field schema.
type Field struct {
	Key      string   `json:"key"`
	Type     string   `json:"type"`
	Label    string   `json:"label"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"` // select only
}

var fieldTypes = map[string]bool{
	"text":     true,
	"textarea": true,
	"email":    true,
	"number":   true,
	"select":   true,
	"checkbox": true,
	"date":     true,
	"file":     true,
}

// ParseFields decodes a stored field schema.
func ParseFields(raw models.JSON) ([]Field, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var fields []Field
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("parsing field schema: %w", err)
	}
	return fields, nil
}

// HasFileField reports whether the schema declares at least one file
// upload field.
func HasFileField(raw models.JSON) bool {
	fields, err := ParseFields(raw)
	if err != nil {
		return false
	}
	for _, f := range fields {
		if f.Type == "file" {
			return true
		}
	}
	return false
}

// ValidateSchema checks a field schema submitted by a form designer.
// The returned map is keyed by field position and is empty when valid.
func ValidateSchema(raw models.JSON) map[string]string {
	problems := make(map[string]string)

	fields, err := ParseFields(raw)
	if err != nil {
		problems["fields"] = "must be a JSON array of field objects"
		return problems
	}

	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		name := fmt.Sprintf("fields[%d]", i)
		switch {
		case f.Key == "":
			problems[name] = "key is required"
		case seen[f.Key]:
			problems[name] = fmt.Sprintf("duplicate key %q", f.Key)
		case !fieldTypes[f.Type]:
			problems[name] = fmt.Sprintf("unknown type %q", f.Type)
		case f.Type == "select" && len(f.Options) == 0:
			problems[name] = "select fields need options"
		}
		seen[f.Key] = true
	}

	return problems
}
