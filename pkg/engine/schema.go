package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

var ErrInvalidPlaybook = errors.New("invalid playbook")

const playbookSchema = `{
  "type": "array",
  "minItems": 1,
  "items": {
    "type": "object",
    "required": ["hosts", "tasks"],
    "additionalProperties": false,
    "properties": {
      "name": {"type": "string"},
      "hosts": {
        "oneOf": [
          {"type": "string", "minLength": 1},
          {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
        ]
      },
      "vars": {"type": "object"},
      "tasks": {"type": "array", "items": {"$ref": "#/definitions/task"}}
    }
  },
  "definitions": {
    "task": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "name": {"type": "string"},
        "shell": {"type": "string", "minLength": 1},
        "command": {"type": "string", "minLength": 1},
        "debug": {
          "type": "object",
          "additionalProperties": false,
          "properties": {"msg": {"type": "string"}, "var": {"type": "string"}}
        },
        "set_fact": {"type": "object"},
        "register": {"type": "string", "minLength": 1},
        "when": {"type": "string"},
        "ignore_errors": {"type": "boolean"},
        "timeout": {"type": "integer", "minimum": 1}
      },
      "oneOf": [
        {"required": ["shell"]},
        {"required": ["command"]},
        {"required": ["debug"]},
        {"required": ["set_fact"]}
      ]
    }
  }
}`

func validatePlaybook(doc any) error {
	schemaLoader := gojsonschema.NewStringLoader(playbookSchema)
	dataLoader := gojsonschema.NewGoLoader(normalize(doc))

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPlaybook, err)
	}

	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidPlaybook, strings.Join(errs, "; "))
	}

	return nil
}

// normalize converts the map[any]any nodes yaml may produce for non-string keys.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalize(item)
		}

		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalize(item)
		}

		return out
	default:
		return v
	}
}
