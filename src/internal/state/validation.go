package state

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maksimkurb/keen-netstate/src/internal/errors"
)

// ValidationError represents a single validation error with context
type ValidationError struct {
	ItemName  string // Interface name, empty for routes and rules
	FieldPath string // Document path, e.g. "interfaces[0].mtu" or "routes.config[2]"
	Message   string
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

	// Report document key names instead of Go field names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "field is required"
	case "min":
		return fmt.Sprintf("must be >= %s", e.Param())
	case "max":
		return fmt.Sprintf("length must be <= %s", e.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", e.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", e.Param())
	case "ip":
		return "must be a valid IP address"
	case "cidr":
		return "must be a valid prefix in CIDR notation"
	case "mac":
		return "must be a valid MAC address"
	default:
		return fmt.Sprintf("validation failed: %s", e.Tag())
	}
}

// Validate checks the structure of a state document. It does not look at any
// other state: cross-references are checked by the reconciliation engine.
//
// Structural problems are reported as InvalidArgument wrapping
// ValidationErrors. Unsupported feature combinations are NotImplementedError.
func (s *NetworkState) Validate() error {
	var errs ValidationErrors

	for i, iface := range s.Interfaces.List() {
		name := iface.Base().Name
		prefix := fmt.Sprintf("interfaces[%d]", i)
		errs = append(errs, convertValidatorErrors(validate.Struct(iface), name, prefix)...)
	}

	for i, r := range s.Routes.Config {
		prefix := fmt.Sprintf("routes.config[%d]", i)
		errs = append(errs, convertValidatorErrors(validate.Struct(r), "", prefix)...)
		if !r.IsAbsent() && r.Iface() == "" {
			errs = append(errs, ValidationError{
				FieldPath: prefix + ".next-hop-interface",
				Message:   "field is required for routes that are not absent",
			})
		}
	}

	for i, r := range s.Rules.Config {
		prefix := fmt.Sprintf("route-rules.config[%d]", i)
		errs = append(errs, convertValidatorErrors(validate.Struct(r), "", prefix)...)
		if r.IPFrom == nil && r.IPTo == nil {
			errs = append(errs, ValidationError{
				FieldPath: prefix,
				Message:   "at least one of ip-from or ip-to is required",
			})
		}
		if r.IPFrom != nil && r.IPTo != nil && r.IsIPv6() &&
			strings.Contains(*r.IPFrom, ":") != strings.Contains(*r.IPTo, ":") {
			errs = append(errs, ValidationError{
				FieldPath: prefix,
				Message:   "ip-from and ip-to must be of the same address family",
			})
		}
	}

	if len(errs) > 0 {
		return errors.Wrap(errors.KindInvalidArgument, "invalid network state", errs)
	}

	for _, iface := range s.Interfaces.List() {
		ip := iface.Base().IPv6
		if ip == nil || ip.Autoconf == nil || !*ip.Autoconf {
			continue
		}
		if ip.DHCP == nil || !*ip.DHCP {
			return errors.NewNotImplemented("interface %s: ipv6 autoconf without dhcp is not supported", iface.Base().Name)
		}
	}

	return nil
}

// convertValidatorErrors converts validator.ValidationErrors to our ValidationErrors
func convertValidatorErrors(err error, itemName, prefix string) ValidationErrors {
	if err == nil {
		return nil
	}
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ValidationErrors{{ItemName: itemName, FieldPath: prefix, Message: err.Error()}}
	}

	out := make(ValidationErrors, 0, len(validationErrs))
	for _, e := range validationErrs {
		out = append(out, ValidationError{
			ItemName:  itemName,
			FieldPath: prefix + fieldPath(e.Namespace()),
			Message:   getValidationMessage(e),
		})
	}
	return out
}

// fieldPath turns "BondInterface.BaseInterface.mtu" into ".mtu".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	var out []string
	for _, p := range parts[1:] {
		if p == "BaseInterface" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return ""
	}
	return "." + strings.Join(out, ".")
}
