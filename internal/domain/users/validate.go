package users

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	namePattern  = regexp.MustCompile(`^[A-Za-z\s-]+$`)
	phonePattern = regexp.MustCompile(`^(\+1|1)?[-.\s]?\(?[2-9]\d{2}\)?[-.\s]?\d{3}[-.\s]?\d{4}$`)
	datePattern  = regexp.MustCompile(`^(0[1-9]|1[0-2])/(0[1-9]|[12]\d|3[01])/\d{4}$`)
)

// FieldError describes one invalid field of an Input
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every invalid field of an Input
type ValidationError struct {
	Details []FieldError
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %d invalid field(s)", len(e.Details))
}

// Validator checks Input values. Birth dates are checked against its clock.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewValidator creates a validator. now may be nil.
func NewValidator(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := &Validator{validate: validator.New(validator.WithRequiredStructEnabled()), now: now}

	v.validate.RegisterTagNameFunc(jsonName)
	_ = v.validate.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("usphone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("birthdate", func(fl validator.FieldLevel) bool {
		return v.birthDateError(fl.Field().String()) == ""
	})
	return v
}

// Validate returns a *ValidationError listing every problem, or nil
func (v *Validator) Validate(in *Input) error {
	err := v.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	details := make([]FieldError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		details = append(details, FieldError{Field: fe.Field(), Message: v.message(fe)})
	}
	return &ValidationError{Details: details}
}

func (v *Validator) message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "max":
		return fmt.Sprintf("%q length must be less than or equal to %s characters long", field, fe.Param())
	case "email":
		return fmt.Sprintf("%q must be a valid email", field)
	case "personname":
		if field == "last_name" {
			return "Last name can only contain letters, spaces, and hyphens"
		}
		if field == "middle_name" {
			return "Middle name can only contain letters, spaces, and hyphens"
		}
		return "First name can only contain letters, spaces, and hyphens"
	case "usphone":
		return "Invalid US phone number format"
	case "birthdate":
		return v.birthDateError(fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%q is invalid", field)
	}
}

func (v *Validator) birthDateError(s string) string {
	if !datePattern.MatchString(s) {
		return "Date must be in MM/DD/YYYY format"
	}
	// time.Parse rejects impossible days such as 02/30
	date, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return "Invalid date"
	}
	if date.After(v.now()) {
		return "Date of birth cannot be in the future"
	}
	return ""
}

func jsonName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}
