package server

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type fragmentRequest struct {
	Title      string   `json:"title" validate:"required,max=500"`
	Content    string   `json:"content" validate:"max=200000"`
	Parameters []string `json:"parameters" validate:"dive,required"`
	Tags       []string `json:"tags" validate:"dive,required,max=100"`
}

type createSetRequest struct {
	Title       string `json:"title" validate:"required,max=500"`
	Description string `json:"description" validate:"max=5000"`
}

type refRequest struct {
	FragmentID      string            `json:"fragmentId" validate:"required"`
	Order           *int              `json:"order,omitempty"`
	ParameterValues map[string]string `json:"parameterValues,omitempty"`
}

type updateSetRequest struct {
	Fragments []refRequest `json:"fragments" validate:"dive"`
}

type reorderRequest struct {
	Orders []orderRequest `json:"orders" validate:"required,min=1,dive"`
}

type orderRequest struct {
	RefID string `json:"refId" validate:"required"`
	Order int    `json:"order"`
}

type visibilityRequest struct {
	Public *bool `json:"public" validate:"required"`
}

type understoodRequest struct {
	FragmentID string `json:"fragmentId" validate:"required"`
	Version    int    `json:"version" validate:"min=1"`
}

// validateRequest validates a request body based on its validation tags.
func validateRequest(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// formatValidationError formats validation errors into readable messages.
func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := e.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
