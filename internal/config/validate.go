package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/san-kum/flowpipe/internal/dynamo"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields under their YAML names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	v.RegisterStructValidation(validateSetSpec, SetSpec{})
	v.RegisterStructValidation(validateDirections, DirectionsSpec{})
	return v
}

func validateSetSpec(sl validator.StructLevel) {
	var s SetSpec
	switch v := sl.Current().Interface().(type) {
	case SetSpec:
		s = v
	case *SetSpec:
		s = *v
	default:
		return
	}
	switch s.variant() {
	case "":
		sl.ReportError(s, "set", "set", "one_variant", "")
	case "ambiguous":
		sl.ReportError(s, "set", "set", "one_variant", "ambiguous")
	case "polytope":
		if len(s.Polytope.A) != len(s.Polytope.B) {
			sl.ReportError(s.Polytope.B, "b", "b", "eqrows", "")
		}
	case "box":
		if len(s.Box.Center) != len(s.Box.Radius) {
			sl.ReportError(s.Box.Radius, "radius", "radius", "eqcenter", "")
		}
	}
}

func validateDirections(sl validator.StructLevel) {
	d, ok := sl.Current().Interface().(DirectionsSpec)
	if ok && d.Select == "custom" && len(d.List) == 0 {
		sl.ReportError(d.List, "list", "list", "required_custom", "")
	}
}

// ValidationError is one rejected field.
type ValidationError struct {
	Field   string
	Message string
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Field + ": " + e.Message
	}
	return fmt.Sprintf("config: invalid problem: %s", strings.Join(parts, "; "))
}

func (v ValidationErrors) Unwrap() error { return dynamo.ErrInvalidInput }

// Validate checks struct tags and the cross-field rules that tags cannot
// express: A square, B rows matching A, and the initial set dimension.
func Validate(p *Problem) error {
	var errs ValidationErrors
	if err := validate.Struct(p); err != nil {
		fieldErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Field:   strings.TrimPrefix(fe.Namespace(), "Problem."),
				Message: message(fe),
			})
		}
	}

	n := len(p.A)
	for i, row := range p.A {
		if len(row) != n {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("a[%d]", i), Message: fmt.Sprintf("has %d entries, A must be %d×%d", len(row), n, n)})
		}
	}
	if len(p.B) > 0 {
		if len(p.B) != n {
			errs = append(errs, ValidationError{Field: "b", Message: fmt.Sprintf("has %d rows, want %d", len(p.B), n)})
		}
		if p.U == nil {
			errs = append(errs, ValidationError{Field: "u", Message: "input set required with b"})
		}
	}
	if d := setDim(&p.X0); d > 0 && d != n {
		errs = append(errs, ValidationError{Field: "x0", Message: fmt.Sprintf("has dimension %d, want %d", d, n)})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func setDim(s *SetSpec) int {
	switch s.variant() {
	case "point":
		return len(s.Point)
	case "box":
		return len(s.Box.Center)
	case "polytope":
		if len(s.Polytope.A) > 0 {
			return len(s.Polytope.A[0])
		}
	case "points":
		if len(s.Points) > 0 {
			return len(s.Points[0])
		}
	}
	return 0
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "field is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "min":
		return fmt.Sprintf("needs at least %s entries", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "one_variant":
		return "exactly one of point, box, polytope, points must be set"
	case "eqrows":
		return "needs one offset per constraint row"
	case "eqcenter":
		return "needs one radius per center coordinate"
	case "required_custom":
		return "custom directions need a list"
	default:
		return fmt.Sprintf("validation failed: %s", fe.Tag())
	}
}
