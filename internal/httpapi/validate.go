package httpapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields under their JSON names so error bodies match the payload.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest returns a nested field error map, or nil when dest is valid.
// items[1].price becomes {"items": {"1": {"price": "..."}}}.
func validateRequest(dest any) map[string]any {
	err := validate.Struct(dest)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]any{"non_field_errors": err.Error()}
	}

	out := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		path := fieldPath(fe.Namespace())
		if len(path) == 0 {
			continue
		}
		node := out
		for _, key := range path[:len(path)-1] {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[key] = child
			}
			node = child
		}
		node[path[len(path)-1]] = fieldMessage(fe)
	}
	return out
}

// fieldPath drops the root struct name and splits indexes into their own segments.
func fieldPath(namespace string) []string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 0 {
		parts = parts[1:]
	}
	path := make([]string, 0, len(parts))
	for _, part := range parts {
		for part != "" {
			open := strings.IndexByte(part, '[')
			if open < 0 {
				path = append(path, part)
				break
			}
			if open > 0 {
				path = append(path, part[:open])
			}
			end := strings.IndexByte(part, ']')
			if end < open {
				path = append(path, part[open:])
				break
			}
			path = append(path, part[open+1:end])
			part = part[end+1:]
		}
	}
	return path
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Ensure this field has at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "gte":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "gt":
		return fmt.Sprintf("Ensure this value is greater than %s.", fe.Param())
	case "lte":
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "oneof":
		return fmt.Sprintf("%q is not a valid choice.", fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("Failed the %s check.", fe.Tag())
	}
}
