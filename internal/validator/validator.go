package validator

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	v := validator.New()

	// Custom validators
	v.RegisterValidation("e164", validateE164)
	v.RegisterValidation("provider_name", validateProviderName)

	return &Validator{validate: v}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

func validateE164(fl validator.FieldLevel) bool {
	return e164Pattern.MatchString(fl.Field().String())
}

func validateProviderName(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "twilio", "plivo", "nexmo":
		return true
	}
	return false
}
