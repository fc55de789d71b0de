package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// Identifier limits for patient keys and site codes
	MaxPatientKeyLength = 64
	MaxSiteCodeLength   = 32

	// Identifiers may carry alphanumerics plus the separators pseudonymized
	// extracts use
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

func init() {
	validate = validator.New()
}

// Struct validates any struct using its validate tags.
func Struct(v any) error {
	if v == nil {
		return errors.New("value cannot be nil")
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// ValidatePatientKey checks a pseudonymized patient identifier.
func ValidatePatientKey(key string) error {
	if key == "" {
		return errors.New("patient key cannot be empty")
	}
	if len(key) > MaxPatientKeyLength {
		return fmt.Errorf("patient key exceeds maximum length of %d characters", MaxPatientKeyLength)
	}
	if !identifierPattern.MatchString(key) {
		return fmt.Errorf("patient key %q contains invalid characters", key)
	}
	return nil
}

// ValidateSiteCode checks a site identifier.
func ValidateSiteCode(code string) error {
	if code == "" {
		return errors.New("site code cannot be empty")
	}
	if len(code) > MaxSiteCodeLength {
		return fmt.Errorf("site code exceeds maximum length of %d characters", MaxSiteCodeLength)
	}
	if !identifierPattern.MatchString(code) {
		return fmt.Errorf("site code %q contains invalid characters", code)
	}
	return nil
}

// formatValidationError converts validator errors to a more user-friendly format
func formatValidationError(err error) error {
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	// Return the first validation error in a user-friendly format
	for _, e := range validationErrs {
		field := e.Field()
		tag := e.Tag()
		param := e.Param()

		switch tag {
		case "required":
			return fmt.Errorf("%s: field is required", field)
		case "min":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "max":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "gte":
			return fmt.Errorf("%s: must be at least %s", field, param)
		case "lte":
			return fmt.Errorf("%s: must not exceed %s", field, param)
		case "oneof":
			return fmt.Errorf("%s: must be one of %s", field, param)
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, tag)
		}
	}

	return err
}
