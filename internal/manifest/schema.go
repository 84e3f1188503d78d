package manifest

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
)

// Schema converts a field to its JSON schema.
func (f Field) Schema() *openapi3.Schema {
	var s *openapi3.Schema
	switch f.Type {
	case TypeString:
		s = openapi3.NewStringSchema()
		if len(f.Enum) > 0 {
			enum := make([]any, 0, len(f.Enum))
			for _, v := range f.Enum {
				enum = append(enum, v)
			}
			s = s.WithEnum(enum...)
		}
	case TypeBoolean:
		s = openapi3.NewBoolSchema()
	case TypeInteger:
		s = openapi3.NewIntegerSchema()
	case TypeNumber:
		s = openapi3.NewFloat64Schema()
	case TypeArray:
		s = openapi3.NewArraySchema()
		if f.Items != nil {
			s = s.WithItems(f.Items.Schema())
		}
	default:
		s = objectSchema(f.Fields, false)
	}
	s.Description = f.Description
	return s
}

func objectSchema(fields []Field, strict bool) *openapi3.Schema {
	s := openapi3.NewObjectSchema()
	var required []string
	for _, f := range fields {
		s = s.WithProperty(f.Name, f.Schema())
		if f.Required {
			required = append(required, f.Name)
		}
	}
	if len(required) > 0 {
		s = s.WithRequired(required)
	}
	if strict {
		s.AdditionalProperties = openapi3.AdditionalProperties{Has: openapi3.BoolPtr(false)}
	}
	return s
}

// InputSchema is the request body schema. Unknown members are not allowed.
func (o *Operation) InputSchema() *openapi3.Schema {
	return objectSchema(o.Input, true)
}

func (o *Operation) OutputSchema() *openapi3.Schema {
	return objectSchema(o.Output, false)
}

// Validate checks payload against the operation's declared input. Every
// problem is reported as one violation detail on a single InvalidArgument
// error; nothing is reported for a valid payload.
func (m *Manifest) Validate(role worker.Role, name string, payload map[string]any) error {
	op, err := m.Operation(role, name)
	if err != nil {
		return err
	}
	return op.Validate(payload)
}

func (o *Operation) Validate(payload map[string]any) error {
	type violation struct{ field, rule, msg string }
	var violations []violation

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if _, ok := o.InputField(k); !ok {
			violations = append(violations, violation{k, "unknown_field", fmt.Sprintf("unknown field %q", k)})
		}
	}

	for _, f := range o.Input {
		v, present := payload[f.Name]
		if !present || v == nil {
			if f.Required {
				violations = append(violations, violation{f.Name, "required", fmt.Sprintf("missing required field %q", f.Name)})
			}
			continue
		}
		if s, ok := v.(string); ok && f.Required && f.Type == TypeString && strings.TrimSpace(s) == "" {
			violations = append(violations, violation{f.Name, "required", fmt.Sprintf("field %q must not be empty", f.Name)})
			continue
		}
		if err := f.Schema().VisitJSON(v); err != nil {
			violations = append(violations, violation{f.Name, "type", fmt.Sprintf("field %q: %s", f.Name, schemaReason(err))})
		}
	}

	if len(violations) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.msg)
	}
	e := cerr.NewError(cerr.InvalidArgument, fmt.Sprintf("invalid %s request: %s", o.Name, strings.Join(msgs, "; ")), ErrValidation)
	for _, v := range violations {
		_ = e.AddDetailMessageWithCode(v.msg, v.field+"."+v.rule)
	}
	return e
}

func schemaReason(err error) string {
	var se *openapi3.SchemaError
	if errors.As(err, &se) && se.Reason != "" {
		return se.Reason
	}
	return err.Error()
}
