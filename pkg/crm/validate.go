package crm

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

var (
	leadPatch        = newPatchRules[Lead]("lead")
	sellerPatch      = newPatchRules[Seller]("seller")
	appointmentPatch = newPatchRules[Appointment]("appointment")
)

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// FieldError is one failed field check.
type FieldError struct {
	Field string
	Rule  string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Rule)
}

// ValidationError lists every field that failed. It matches
// listctl.ErrValidation with errors.Is.
type ValidationError struct {
	Resource string
	Fields   []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("invalid %s: %s", e.Resource, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == listctl.ErrValidation
}

// ValidateLead checks a lead before it is created.
func ValidateLead(l Lead) error {
	return check("lead", l)
}

// ValidateSeller checks a seller before it is created.
func ValidateSeller(s Seller) error {
	return check("seller", s)
}

// ValidateAppointment checks an appointment before it is created.
func ValidateAppointment(a Appointment) error {
	return check("appointment", a)
}

// ValidateLeadPatch checks a partial lead update against the same rules as ValidateLead.
func ValidateLeadPatch(p listctl.Patch) error {
	return leadPatch.check(p)
}

// ValidateSellerPatch checks a partial seller update.
func ValidateSellerPatch(p listctl.Patch) error {
	return sellerPatch.check(p)
}

// ValidateAppointmentPatch checks a partial appointment update.
func ValidateAppointmentPatch(p listctl.Patch) error {
	return appointmentPatch.check(p)
}

func check(resource string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %s: %w", resource, err)
	}

	out := &ValidationError{Resource: resource}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: ruleOf(fe)})
	}
	return out
}

func ruleOf(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}

// readOnly fields are assigned by the server and never patched.
var readOnly = map[string]bool{"id": true, "createdAt": true}

type patchField struct {
	typ  reflect.Type
	rule string
}

// patchRules maps the JSON names of T's writable fields to their type and
// validate tag.
type patchRules struct {
	resource string
	fields   map[string]patchField
}

func newPatchRules[T any](resource string) patchRules {
	t := reflect.TypeFor[T]()
	r := patchRules{resource: resource, fields: make(map[string]patchField)}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" || readOnly[name] {
			continue
		}
		r.fields[name] = patchField{typ: f.Type, rule: f.Tag.Get("validate")}
	}
	return r
}

// check reports unknown fields, values that do not decode into the field
// type and values failing the field's tag. A present field is held to its
// full tag, so a patch cannot blank a required field.
func (r patchRules) check(p listctl.Patch) error {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)

	out := &ValidationError{Resource: r.resource}
	for _, name := range names {
		field, ok := r.fields[name]
		if !ok {
			out.Fields = append(out.Fields, FieldError{Field: name, Rule: "unknown"})
			continue
		}

		value, err := decodeAs(p[name], field.typ)
		if err != nil {
			out.Fields = append(out.Fields, FieldError{Field: name, Rule: "type"})
			continue
		}
		if field.rule == "" {
			continue
		}

		err = validate.Var(value, field.rule)
		if err == nil {
			continue
		}
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validate %s patch: %w", r.resource, err)
		}
		for _, fe := range fieldErrs {
			out.Fields = append(out.Fields, FieldError{Field: name, Rule: ruleOf(fe)})
		}
	}

	if len(out.Fields) == 0 {
		return nil
	}
	return out
}

// decodeAs converts a JSON-shaped value (string, float64, bool, nil) into typ.
func decodeAs(v any, typ reflect.Type) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(typ)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}
