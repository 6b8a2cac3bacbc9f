// Argument schemas for scale commands. A schema is a flat list of
// typed fields - validation coerces loosely typed caller input into
// the declared types and reports every problem at once.
package schema

import (
	"fmt"
	"strconv"
	"strings"

	"www.velocidex.com/golang/basilisk/errors"
	"www.velocidex.com/golang/basilisk/utils"
)

type Kind int

const (
	STRING Kind = iota
	INT
	FLOAT
	BOOL
	LIST
	DICT
	ENUM
)

func (self Kind) String() string {
	switch self {
	case STRING:
		return "string"
	case INT:
		return "int"
	case FLOAT:
		return "float"
	case BOOL:
		return "bool"
	case LIST:
		return "list"
	case DICT:
		return "dict"
	case ENUM:
		return "enum"
	}
	return "unknown"
}

type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Default  interface{}
	Info     string

	// Allowed values for ENUM fields.
	Values []string
}

type Spec struct {
	Fields []*Field
}

func NewSpec(fields ...*Field) *Spec {
	return &Spec{Fields: fields}
}

// Validate coerces args against the schema and returns the
// normalized copy. Validation is idempotent - validating its own
// output yields the same result. All problems are reported together
// in a single ValidationError payload.
func (self *Spec) Validate(
	args map[string]interface{}) (map[string]interface{}, error) {

	problems := make(map[string][]string)
	result := make(map[string]interface{})

	known := make([]string, 0, len(self.Fields))
	for _, field := range self.Fields {
		known = append(known, field.Name)
	}

	for name := range args {
		if !utils.InString(known, name) {
			problems[name] = append(problems[name], "unknown field")
		}
	}

	for _, field := range self.Fields {
		value, pres := args[field.Name]
		if !pres || value == nil {
			if field.Required {
				problems[field.Name] = append(
					problems[field.Name], "field is required")
				continue
			}
			if field.Default != nil {
				result[field.Name] = field.Default
			}
			continue
		}

		coerced, err := coerce(field, value)
		if err != nil {
			problems[field.Name] = append(
				problems[field.Name], err.Error())
			continue
		}

		result[field.Name] = coerced
	}

	if len(problems) > 0 {
		return nil, errors.NewValidationError(problems)
	}

	return result, nil
}

func coerce(field *Field, value interface{}) (interface{}, error) {
	switch field.Kind {
	case STRING:
		return coerceString(value)

	case INT:
		return coerceInt(value)

	case FLOAT:
		return coerceFloat(value)

	case BOOL:
		return coerceBool(value)

	case LIST:
		switch t := value.(type) {
		case []interface{}:
			return t, nil
		case []string:
			result := make([]interface{}, 0, len(t))
			for _, item := range t {
				result = append(result, item)
			}
			return result, nil
		}
		return nil, fmt.Errorf("expected a list, got %T", value)

	case DICT:
		t, ok := value.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected a dict, got %T", value)
		}
		return t, nil

	case ENUM:
		s, err := coerceString(value)
		if err != nil {
			return nil, err
		}
		if !utils.InString(field.Values, s) {
			return nil, fmt.Errorf("must be one of %v",
				strings.Join(field.Values, ", "))
		}
		return s, nil
	}

	return nil, fmt.Errorf("unknown field kind %v", field.Kind)
}

func coerceString(value interface{}) (string, error) {
	switch t := value.(type) {
	case string:
		return t, nil
	case int, int64, float64, bool:
		return fmt.Sprintf("%v", t), nil
	}
	return "", fmt.Errorf("expected a string, got %T", value)
}

func coerceInt(value interface{}) (int64, error) {
	switch t := value.(type) {
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case float64:
		if t != float64(int64(t)) {
			return 0, fmt.Errorf("expected an integer, got %v", t)
		}
		return int64(t), nil
	case string:
		parsed, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("expected an integer, got %q", t)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("expected an integer, got %T", value)
}

func coerceFloat(value interface{}) (float64, error) {
	switch t := value.(type) {
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", t)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("expected a number, got %T", value)
}

func coerceBool(value interface{}) (bool, error) {
	switch t := value.(type) {
	case bool:
		return t, nil
	case string:
		switch strings.ToLower(t) {
		case "true", "yes", "1":
			return true, nil
		case "false", "no", "0":
			return false, nil
		}
		return false, fmt.Errorf("expected a bool, got %q", t)
	}
	return false, fmt.Errorf("expected a bool, got %T", value)
}
