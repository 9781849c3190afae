// Package validation checks command and query input with struct tags before
// anything is sent to the backend.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/gjc-vemulawada/attendance-hub/internal/domain/attendance"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/shared"
	"github.com/gjc-vemulawada/attendance-hub/internal/domain/student"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the attendance tags registered:
// month, academic_year and group.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		// Report JSON names rather than Go field names.
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})

		_ = v.RegisterValidation("month", func(fl validator.FieldLevel) bool {
			_, err := attendance.ParseMonth(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("academic_year", func(fl validator.FieldLevel) bool {
			_, err := attendance.ParseAcademicYear(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("group", func(fl validator.FieldLevel) bool {
			_, ok := student.ParseGroup(fl.Field().String())
			return ok
		})
		instance = v
	})
	return instance
}

// Struct validates v and turns failures into a shared validation error naming
// every offending field.
func Struct(domain, op string, v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return shared.WrapError(domain, op, shared.ErrInvalidInput, "invalid input", err)
	}

	problems := make([]string, 0, len(ve))
	for _, fe := range ve {
		problems = append(problems, describe(fe))
	}
	sort.Strings(problems)
	return shared.NewValidationError(domain, op, strings.Join(problems, "; "))
}

// Fields maps each offending field to its failed rule, for API error details.
func Fields(err error) map[string]string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return nil
	}
	out := make(map[string]string, len(ve))
	for _, fe := range ve {
		out[fe.Field()] = fe.Tag()
	}
	return out
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "month":
		return fmt.Sprintf("%s: unknown month %q", field, fmt.Sprint(fe.Value()))
	case "academic_year":
		return field + " must look like 2024-2025"
	case "group":
		return fmt.Sprintf("%s: unknown group %q", field, fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}
