package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/justgu1/cepapi/internal/errs"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	// Postgres text columns reject NUL; other control runes have no place in labels either.
	_ = v.RegisterValidation("nocontrol", func(fl validator.FieldLevel) bool {
		return strings.IndexFunc(fl.Field().String(), unicode.IsControl) < 0
	})
	return v
}

// checkStruct runs struct tag validation and converts failures to *errs.ValidationError.
func checkStruct(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fe validator.ValidationErrors
	if !errors.As(err, &fe) {
		return err
	}
	out := &errs.ValidationError{}
	for _, e := range fe {
		out.Add(e.Field(), message(e))
	}
	return out
}

func message(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", e.Field())
	case "max":
		return fmt.Sprintf("The %s field must not be greater than %s characters.", e.Field(), e.Param())
	case "min":
		return fmt.Sprintf("The %s field must be at least %s characters.", e.Field(), e.Param())
	case "nocontrol":
		return fmt.Sprintf("The %s field must not contain control characters.", e.Field())
	case "email":
		return fmt.Sprintf("The %s field must be a valid email address.", e.Field())
	default:
		return fmt.Sprintf("The %s field is invalid.", e.Field())
	}
}
