package manifest

import (
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/kazz187/taskcrew/internal/worker"
	"github.com/kazz187/taskcrew/pkg/cerr"
)

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrValidation       = errors.New("validation failed")
)

type FieldType string

const (
	TypeString  FieldType = "string"
	TypeBoolean FieldType = "boolean"
	TypeInteger FieldType = "integer"
	TypeNumber  FieldType = "number"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// Field declares one input or output value of an operation. Items describes
// array elements and Fields the members of an object.
type Field struct {
	Name        string    `json:"name" yaml:"name"`
	Type        FieldType `json:"type" yaml:"type"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Required    bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Enum        []string  `json:"enum,omitempty" yaml:"enum,omitempty"`
	Items       *Field    `json:"items,omitempty" yaml:"items,omitempty"`
	Fields      []Field   `json:"fields,omitempty" yaml:"fields,omitempty"`
}

type Operation struct {
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Input       []Field `json:"input" yaml:"input"`
	Output      []Field `json:"output" yaml:"output"`
}

// InputField returns the declared input named name.
func (o *Operation) InputField(name string) (Field, bool) {
	i := slices.IndexFunc(o.Input, func(f Field) bool { return f.Name == name })
	if i < 0 {
		return Field{}, false
	}
	return o.Input[i], true
}

type Role struct {
	Role        worker.Role `json:"role" yaml:"role"`
	Description string      `json:"description" yaml:"description"`
	Operations  []Operation `json:"operations" yaml:"operations"`
}

// Manifest lists every role's operations in a fixed order. It is built once
// and never mutated.
type Manifest struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Roles   []Role `json:"roles" yaml:"roles"`
}

func (m *Manifest) Role(role worker.Role) (*Role, error) {
	for i := range m.Roles {
		if m.Roles[i].Role == role {
			return &m.Roles[i], nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("unknown role %q", role), ErrUnknownOperation)
}

func (m *Manifest) Operation(role worker.Role, name string) (*Operation, error) {
	r, err := m.Role(role)
	if err != nil {
		return nil, err
	}
	for i := range r.Operations {
		if r.Operations[i].Name == name {
			return &r.Operations[i], nil
		}
	}
	return nil, cerr.NewError(cerr.NotFound, fmt.Sprintf("role %s has no operation %q", role, name), ErrUnknownOperation)
}

// OperationNames returns the role's operations in declaration order.
func (m *Manifest) OperationNames(role worker.Role) []string {
	r, err := m.Role(role)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(r.Operations))
	for _, op := range r.Operations {
		names = append(names, op.Name)
	}
	return names
}

// Render returns the canonical YAML form used for drift checks.
func (m *Manifest) Render() ([]byte, error) {
	return yaml.Marshal(m)
}
