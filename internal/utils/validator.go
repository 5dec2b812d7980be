// Package utils provides utility functions used throughout the engine.
package utils

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance.
	validate *validator.Validate

	validationErrorMessages = map[string]string{
		"required": "This field is required",
		"min":      "Value must be greater than or equal to %s",
		"max":      "Value must be less than or equal to %s",
		"len":      "Length must be exactly %s",
		"oneof":    "Must be one of: %s",
		"uuid":     "Must be a valid UUID",
	}
)

func init() {
	validate = validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate performs validation on the given struct (request DTOs arriving
// from the RPC transport) and returns validation errors.
func Validate(s any) error {
	return validate.Struct(s)
}

// ValidateVar validates a single variable with the given tag.
func ValidateVar(field any, tag string) error {
	return validate.Var(field, tag)
}

// FormatValidationErrors formats validator.ValidationErrors into a
// user-friendly field->message map, used to build syncerr.Invalid details.
func FormatValidationErrors(err error) map[string]string {
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		message, exists := validationErrorMessages[fe.Tag()]
		if !exists {
			message = "Invalid value"
		}
		if fe.Param() != "" && strings.Contains(message, "%s") {
			message = strings.Replace(message, "%s", fe.Param(), 1)
		}
		out[fe.Field()] = message
	}
	return out
}
