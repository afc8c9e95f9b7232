// Package validation checks request payloads before they reach a service.
//
// Inputs are plain structs carrying `json` and `validate` tags. Decoding is
// strict (unknown fields are rejected) and every violated rule is reported,
// not just the first one. Nothing here performs I/O.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"

	"github.com/hms/hms/internal/platform/apperr"
)

// Defaulter is implemented by inputs that fill optional fields before the
// rules run (for example isActive=true on patient registration).
type Defaulter interface {
	ApplyDefaults()
}

// CrossValidator is implemented by inputs with rules spanning several
// fields. Its findings are reported together with the tag violations.
type CrossValidator interface {
	CrossValidate() []apperr.FieldError
}

var (
	hhmmPattern  = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9 \-]{6,19}$`)
)

// Validator wraps a configured go-playground validator.
type Validator struct {
	v *validator.Validate
}

// New builds a Validator with json field naming and the custom rules
// hhmm, phone and isodate registered.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("isodate", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.DateOnly, fl.Field().String())
		return err == nil
	})
	return &Validator{v: v}
}

var (
	defaultOnce sync.Once
	defaultV    *Validator
)

// Default returns the process-wide Validator.
func Default() *Validator {
	defaultOnce.Do(func() { defaultV = New() })
	return defaultV
}

// Struct applies defaults and runs every rule on s. It returns nil or an
// *apperr.Error of kind Validation listing all violations.
func (v *Validator) Struct(s any) error {
	if d, ok := s.(Defaulter); ok {
		d.ApplyDefaults()
	}
	var fields []apperr.FieldError
	if err := v.v.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return apperr.Internal(err)
		}
		for _, fe := range verrs {
			fields = append(fields, apperr.FieldError{
				Field:   fieldPath(fe.Namespace()),
				Message: message(fe),
			})
		}
	}
	if cv, ok := s.(CrossValidator); ok {
		fields = append(fields, cv.CrossValidate()...)
	}
	if len(fields) == 0 {
		return nil
	}
	return apperr.Validation(fields...)
}

// Validate satisfies echo.Validator.
func (v *Validator) Validate(i interface{}) error {
	return v.Struct(i)
}

// fieldPath drops the root struct name: "CreatePaymentInput.amount" -> "amount".
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_with":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must contain at most %s item(s)", fe.Param())
		}
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "email":
		return "must be a valid email address"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "hhmm":
		return "must be a time in HH:MM (24h) format"
	case "isodate":
		return "must be a date in YYYY-MM-DD format"
	case "phone":
		return "must be a valid phone number"
	case "uppercase":
		return "must be uppercase"
	default:
		return "failed rule " + fe.Tag()
	}
}

// Decode reads a single JSON document from r into dst, rejecting unknown
// fields and trailing data. Decoding failures are reported as validation
// errors so the client gets the same error shape as for rule violations.
func Decode(r io.Reader, dst any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return decodeError(err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Validation(apperr.FieldError{Field: "body", Message: "must contain a single JSON object"})
	}
	return nil
}

func decodeError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return apperr.Validation(apperr.FieldError{Field: "body", Message: "request body is required"})
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.Validation(apperr.FieldError{Field: "body", Message: "malformed JSON"})
	case errors.As(err, &typeErr):
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return apperr.Validation(apperr.FieldError{Field: field, Message: "must be of type " + typeErr.Type.String()})
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		name := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		return apperr.Validation(apperr.FieldError{Field: name, Message: "unknown field"})
	default:
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return ae
		}
		return apperr.Validation(apperr.FieldError{Field: "body", Message: err.Error()})
	}
}

// Bind decodes the request body into dst and validates it.
func (v *Validator) Bind(c echo.Context, dst any) error {
	if err := Decode(c.Request().Body, dst); err != nil {
		return err
	}
	return v.Struct(dst)
}

// Bind uses the default Validator.
func Bind(c echo.Context, dst any) error {
	return Default().Bind(c, dst)
}

// Struct uses the default Validator.
func Struct(s any) error {
	return Default().Struct(s)
}

// Expand rejects ?expand= keys that are not among the relations allowed.
func Expand(keys []string, allowed ...string) error {
	unknown := lo.Without(keys, allowed...)
	if len(unknown) == 0 {
		return nil
	}
	return apperr.Validation(apperr.FieldError{
		Field:   "expand",
		Message: fmt.Sprintf("unknown relation %q, must be one of: %s", unknown[0], strings.Join(allowed, ", ")),
	})
}
