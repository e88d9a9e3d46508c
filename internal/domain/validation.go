package domain

import (
	"github.com/go-playground/validator/v10"
)

// validate is the package-level validator instance used for struct validation.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct runs tag-based validation on v with the shared validator.
func ValidateStruct(v any) error { return validate.Struct(v) }
