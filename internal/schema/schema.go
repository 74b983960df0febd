// Package schema validates server metadata payloads against instance schema definitions.
//
// Each field type is a distinct variant implementing Field, so adding a type means adding
// a variant and registering its constructor in kinds.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/woozymasta/masterlist/internal/models"
)

const (
	maxNameLen        = 64
	maxDescriptionLen = 255
)

// Field is one typed metadata field of a schema.
type Field interface {
	// Spec returns the definition the field was built from.
	Spec() models.SchemaField
	// Validate reports whether v is acceptable for this field.
	Validate(v any) bool
}

type base struct {
	spec models.SchemaField
}

func (b base) Spec() models.SchemaField { return b.spec }

// StringField accepts strings.
type StringField struct{ base }

// Validate implements Field.
func (StringField) Validate(v any) bool {
	_, ok := v.(string)
	return ok
}

// IntegerField accepts integral numbers and strings of digits.
type IntegerField struct{ base }

// Validate implements Field.
func (IntegerField) Validate(v any) bool {
	switch t := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return t == math.Trunc(t) && !math.IsInf(t, 0)
	case float32:
		return float64(t) == math.Trunc(float64(t))
	case json.Number:
		_, err := t.Int64()
		return err == nil
	case string:
		return isDigits(t)
	default:
		return false
	}
}

// FloatField accepts any numeric value, including numeric strings.
type FloatField struct{ base }

// Validate implements Field.
func (FloatField) Validate(v any) bool {
	switch t := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32:
		return true
	case float64:
		return !math.IsNaN(t)
	case json.Number:
		_, err := t.Float64()
		return err == nil
	case string:
		_, err := strconv.ParseFloat(t, 64)
		return err == nil
	default:
		return false
	}
}

// BooleanField accepts booleans, 0/1 and their string forms.
type BooleanField struct{ base }

// Validate implements Field.
func (BooleanField) Validate(v any) bool {
	switch t := v.(type) {
	case bool:
		return true
	case int:
		return t == 0 || t == 1
	case float64:
		return t == 0 || t == 1
	case json.Number:
		return t == "0" || t == "1"
	case string:
		return t == "0" || t == "1" || t == "true" || t == "false"
	default:
		return false
	}
}

// ArrayField accepts lists and objects.
type ArrayField struct{ base }

// Validate implements Field.
func (ArrayField) Validate(v any) bool {
	switch v.(type) {
	case []any, map[string]any, []string:
		return true
	default:
		return false
	}
}

var kinds = map[string]func(models.SchemaField) Field{
	"string":  func(s models.SchemaField) Field { return StringField{base{s}} },
	"integer": func(s models.SchemaField) Field { return IntegerField{base{s}} },
	"float":   func(s models.SchemaField) Field { return FloatField{base{s}} },
	"boolean": func(s models.SchemaField) Field { return BooleanField{base{s}} },
	"array":   func(s models.SchemaField) Field { return ArrayField{base{s}} },
}

// Schema is a compiled list of typed fields.
type Schema struct {
	fields []Field
}

// Compile checks the definitions and builds the typed fields.
// Problems are reported as models.ValidationErrors keyed by "schema.<index>.<attr>".
func Compile(defs []models.SchemaField) (*Schema, error) {
	errs := models.ValidationErrors{}
	fields := make([]Field, 0, len(defs))
	seen := make(map[string]struct{}, len(defs))

	for i, d := range defs {
		prefix := fmt.Sprintf("schema.%d.", i)

		switch {
		case d.Name == "":
			errs.Add(prefix+"name", "The name field is required.")
		case len(d.Name) > maxNameLen:
			errs.Add(prefix+"name", fmt.Sprintf("The name may not be greater than %d characters.", maxNameLen))
		}
		if _, dup := seen[d.Name]; dup && d.Name != "" {
			errs.Add(prefix+"name", "The name has already been used.")
		}
		seen[d.Name] = struct{}{}

		if len(d.Description) > maxDescriptionLen {
			errs.Add(prefix+"description", fmt.Sprintf("The description may not be greater than %d characters.", maxDescriptionLen))
		}

		ctor, ok := kinds[d.Type]
		if !ok {
			errs.Add(prefix+"type", "The type must be one of string, integer, float, boolean, array.")
			continue
		}
		fields = append(fields, ctor(d))
	}

	if err := errs.Err(); err != nil {
		return nil, err
	}
	return &Schema{fields: fields}, nil
}

// Fields returns the compiled fields in definition order.
func (s *Schema) Fields() []Field {
	return s.fields
}

// Validate checks data against the schema. Unknown keys are allowed.
func (s *Schema) Validate(data map[string]any) error {
	errs := models.ValidationErrors{}
	for _, f := range s.fields {
		spec := f.Spec()
		v, present := data[spec.Name]
		if !present || v == nil {
			if spec.Required {
				errs.Add(spec.Name, fmt.Sprintf("The %s field is required.", spec.Name))
			}
			continue
		}
		if !f.Validate(v) {
			errs.Add(spec.Name, fmt.Sprintf("The %s field must be of type %s.", spec.Name, spec.Type))
		}
	}
	return errs.Err()
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
