// Package template renders parameterized playbook bodies against a
// schema-validated variable set, and manages template records.
package template

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/opsmith/playbookpilot/pkg/models"
)

// placeholderRe matches {{ name }} references in a template body.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// Render substitutes variables into the template body after closed-world
// schema validation. On any validation failure it returns the complete list
// of errors and no partial output. Substitution is a single pass over the
// body: variable values are literal data and are never re-parsed as template
// syntax, so rendering twice with the same inputs is byte-identical.
func Render(tpl *models.Template, vars map[string]any) (string, []string) {
	if tpl.Schema == nil {
		return substitute(tpl.Content, vars), nil
	}

	errs := validate(tpl.Schema, vars)
	if len(errs) > 0 {
		return "", errs
	}

	merged := make(map[string]any, len(tpl.Schema.Properties))
	for name, spec := range tpl.Schema.Properties {
		if spec.Default != nil {
			merged[name] = spec.Default
		}
	}
	for name, value := range vars {
		merged[name] = value
	}

	return substitute(tpl.Content, merged), nil
}

// validate checks vars against the schema and collects every error rather
// than stopping at the first.
func validate(schema *models.VariableSchema, vars map[string]any) []string {
	var errs []string

	for _, required := range schema.Required {
		if _, ok := vars[required]; !ok {
			errs = append(errs, fmt.Sprintf("Required field missing: %s", required))
		}
	}

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec, known := schema.Properties[name]
		if !known {
			errs = append(errs, fmt.Sprintf("Unknown field: %s", name))
			continue
		}
		value := vars[name]
		if !typeMatches(spec.Type, value) {
			errs = append(errs, fmt.Sprintf("Field %s must be a %s", name, spec.Type))
			continue
		}
		if len(spec.Enum) > 0 && !enumContains(spec.Enum, value) {
			errs = append(errs, fmt.Sprintf("Field %s must be one of: %s", name, formatEnum(spec.Enum)))
		}
	}

	return errs
}

func typeMatches(fieldType string, value any) bool {
	switch fieldType {
	case models.FieldString:
		_, ok := value.(string)
		return ok
	case models.FieldInteger:
		switch v := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			// JSON numbers decode as float64; accept integral values.
			return v == float64(int64(v))
		default:
			return false
		}
	case models.FieldNumber:
		switch value.(type) {
		case int, int32, int64, float32, float64:
			return true
		default:
			return false
		}
	case models.FieldBoolean:
		_, ok := value.(bool)
		return ok
	default:
		return true
	}
}

func enumContains(enum []any, value any) bool {
	for _, allowed := range enum {
		if formatValue(allowed) == formatValue(value) {
			return true
		}
	}
	return false
}

func formatEnum(enum []any) string {
	parts := make([]string, len(enum))
	for i, v := range enum {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, ", ")
}

// substitute replaces each placeholder with its variable value in one pass.
// Placeholders without a value are left as-is.
func substitute(body string, vars map[string]any) string {
	return placeholderRe.ReplaceAllStringFunc(body, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok {
			return match
		}
		return formatValue(value)
	})
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
