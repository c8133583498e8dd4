package services

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"catalog/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/shopspring/decimal"
)

const (
	msgRequired      = "This field is required."
	msgBlank         = "This field may not be blank."
	msgDecimalPlaces = "Ensure that there are no more than 2 decimal places."
	msgIntegerDigits = "Ensure that there are no more than 8 digits before the decimal point."
)

// ValidationError maps JSON field names to human-readable messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a message for field unless one is already present.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = message
	}
}

func (e *ValidationError) empty() bool {
	return len(e.Fields) == 0
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	// Numeric tags (gte, lt) compare decimals through their float value.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// ValidateProduct checks a product before it is persisted. It returns a
// *ValidationError describing every offending field, or nil.
func ValidateProduct(product *models.Product) error {
	verr := &ValidationError{}

	if err := validate.Struct(product); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate product: %w", err)
		}
		for _, fe := range fieldErrs {
			verr.Add(fe.Field(), messageFor(fe))
		}
	}

	if !product.Price.Equal(product.Price.Round(2)) {
		verr.Add("price", msgDecimalPlaces)
	}

	if verr.empty() {
		return nil
	}
	return verr
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return msgRequired
	case "notblank":
		return msgBlank
	case "max":
		return fmt.Sprintf("Ensure this field has no more than %s characters.", fe.Param())
	case "gte":
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	case "lt":
		return msgIntegerDigits
	default:
		return fmt.Sprintf("Field '%s' failed on the '%s' tag", fe.Field(), fe.Tag())
	}
}
