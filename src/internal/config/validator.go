package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
)

// ValidateConfig validates the entire configuration and returns all validation errors
func (c *Config) ValidateConfig() error {
	var validationErrors ValidationErrors

	if c.General == nil {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "general",
			Message:   "configuration must contain 'general' section",
		})
		return errors.NewConfigError("invalid configuration", validationErrors)
	}

	sections := []struct {
		name  string
		value interface{}
	}{
		{"general", c.General},
		{"apply", c.Apply},
		{"verification", c.Verification},
		{"api", c.API},
		{"output", c.Output},
	}
	for _, s := range sections {
		if err := validate.Struct(s.value); err != nil {
			validationErrors = append(validationErrors, convertValidatorErrors(err, s.name, "")...)
		}
	}

	validationErrors = append(validationErrors, c.validateVerification()...)

	if c.API != nil && c.API.Enabled && c.API.ListenAddr == "" {
		validationErrors = append(validationErrors, ValidationError{
			FieldPath: "api.listen_addr",
			Message:   "listen address is required when the API is enabled",
		})
	}

	if len(validationErrors) > 0 {
		return errors.NewConfigError("invalid configuration", validationErrors)
	}

	return nil
}

func (c *Config) validateVerification() ValidationErrors {
	var validationErrors ValidationErrors
	if c.Verification == nil {
		return nil
	}

	seen := make(map[string]bool)
	for _, name := range c.Verification.IgnoredInterfaces {
		if seen[name] {
			validationErrors = append(validationErrors, ValidationError{
				ItemName:  name,
				FieldPath: "verification.ignored_interfaces",
				Message:   fmt.Sprintf("duplicate interface: %s", name),
			})
		}
		seen[name] = true
	}
	return validationErrors
}

// convertValidatorErrors converts go-playground/validator errors to our ValidationError format
func convertValidatorErrors(err error, fieldPrefix string, itemName string) ValidationErrors {
	var validationErrors ValidationErrors

	var validatorErrs validator.ValidationErrors
	if errors.As(err, &validatorErrs) {
		for _, e := range validatorErrs {
			fieldPath := fieldPrefix
			if e.Field() != "" {
				// e.Field() returns the TOML tag name because we registered TagNameFunc
				fieldName := e.Field()

				if fieldPrefix != "" {
					fieldPath = fieldPrefix + "." + fieldName
				} else {
					fieldPath = fieldName
				}
			}

			validationErrors = append(validationErrors, ValidationError{
				ItemName:  itemName,
				FieldPath: fieldPath,
				Message:   getValidationMessage(e),
			})
		}
	}

	return validationErrors
}
