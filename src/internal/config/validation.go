package config

import (
	"fmt"
	"net"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// getValidationMessage returns a human-readable message for a validation error
func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "hostport_or_empty":
		return "must be in format 'host:port' or empty"
	case "ifname":
		return "must be a valid interface name (1-15 characters, no '/', ':' or whitespace)"
	case "plan_template":
		return "must only use the variables {{op}}, {{type}}, {{name}}, {{priority}} and {{controller}}"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	ItemName  string // Section or item the error belongs to (e.g., "apply")
	FieldPath string // Dot-notation field path (e.g., "apply.retry_attempts")
	Message   string // Human-readable error message
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("validation failed with %d error(s):\n", len(ve)))
	for i, err := range ve {
		if err.ItemName != "" {
			sb.WriteString(fmt.Sprintf("  %d. [%s] %s: %s\n", i+1, err.ItemName, err.FieldPath, err.Message))
		} else {
			sb.WriteString(fmt.Sprintf("  %d. %s: %s\n", i+1, err.FieldPath, err.Message))
		}
	}
	return sb.String()
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	if err := validate.RegisterValidation("hostport_or_empty", validateHostPortOrEmpty); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("ifname", validateIfnameTag); err != nil {
		panic(err)
	}
	if err := validate.RegisterValidation("plan_template", validatePlanTemplateTag); err != nil {
		panic(err)
	}

	// Register function to get field name from "toml" tag
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("toml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Custom validator: host:port format or empty
func validateHostPortOrEmpty(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, _, err := net.SplitHostPort(value)
	return err == nil
}

// Custom validator: kernel interface name
func validateIfnameTag(fl validator.FieldLevel) bool {
	return IsValidInterfaceName(fl.Field().String())
}

// IsValidInterfaceName reports whether name is acceptable to the kernel as a
// network interface name.
func IsValidInterfaceName(name string) bool {
	if name == "" || len(name) > 15 || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, "/: \t\n")
}

// Custom validator: plan template only uses known variables
func validatePlanTemplateTag(fl validator.FieldLevel) bool {
	return validatePlanTemplate(fl.Field().String()) == nil
}

func validatePlanTemplate(tmpl string) error {
	known := map[string]bool{
		PLAN_TMPL_OP:         true,
		PLAN_TMPL_TYPE:       true,
		PLAN_TMPL_NAME:       true,
		PLAN_TMPL_PRIORITY:   true,
		PLAN_TMPL_CONTROLLER: true,
	}
	rest := tmpl
	for {
		start := strings.Index(rest, "{{")
		if start == -1 {
			return nil
		}
		end := strings.Index(rest[start:], "}}")
		if end == -1 {
			return fmt.Errorf("unterminated variable")
		}
		name := strings.TrimSpace(rest[start+2 : start+end])
		if !known[name] {
			return fmt.Errorf("unknown variable %q", name)
		}
		rest = rest[start+end+2:]
	}
}
