package gst

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

var gstinPattern = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterValidation("gstin", func(fl validator.FieldLevel) bool {
		return gstinPattern.MatchString(fl.Field().String())
	})
	return v
}

type credentials struct {
	Username string `validate:"required,max=100"`
	GSTIN    string `validate:"required,len=15,gstin"`
}

type otpInput struct {
	OTP string `validate:"required,len=6,numeric"`
}

// ValidateCredentials checks the username and GSTIN a user typed before any
// backend call is made.
func ValidateCredentials(username, gstin string) error {
	return check("credentials", gstin, credentials{Username: strings.TrimSpace(username), GSTIN: gstin})
}

// ValidateGSTIN checks a GSTIN on its own, for prompts that ask one field at
// a time.
func ValidateGSTIN(gstin string) error {
	return checkField("gstin", gstin, gstin, "GSTIN", "required,len=15,gstin")
}

func ValidateUsername(username string) error {
	return checkField("credentials", "", strings.TrimSpace(username), "Username", "required,max=100")
}

// ValidateOTP checks that otp is a six digit code.
func ValidateOTP(otp string) error {
	return check("otp", "", otpInput{OTP: otp})
}

func check(op, gstin string, v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Kind: KindInvalidInput, Op: op, GSTIN: gstin, Err: err}
	}
	return &Error{Kind: KindInvalidInput, Op: op, GSTIN: gstin, Err: errors.New(describe(verrs[0]))}
}

func checkField(op, gstin, value, field, tag string) error {
	err := validate.Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &Error{Kind: KindInvalidInput, Op: op, GSTIN: gstin, Err: err}
	}
	return &Error{Kind: KindInvalidInput, Op: op, GSTIN: gstin, Err: errors.New(describeTag(field, verrs[0].Tag(), verrs[0].Param()))}
}

func describe(fe validator.FieldError) string {
	return describeTag(fe.Field(), fe.Tag(), fe.Param())
}

func describeTag(name, tag, param string) string {
	field := strings.ToLower(name)
	switch tag {
	case "required":
		return field + " is required"
	case "len":
		if name == "OTP" {
			return "otp must be " + param + " digits"
		}
		return field + " must be " + param + " characters"
	case "max":
		return field + " must be at most " + param + " characters"
	case "numeric":
		return field + " must contain only digits"
	case "gstin":
		return "gstin is not in the expected format (e.g. 27AAMCR5575Q1ZA)"
	default:
		return field + " is invalid"
	}
}
