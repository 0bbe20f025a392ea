package middleware

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/form/v4"
	"github.com/go-playground/validator/v10"

	apperrors "nebulaviz/internal/errors"
	"nebulaviz/pkg/contracts/domain"
)

// QueryValidator decodes query strings into tagged structs and validates them.
// Field names come from the `query` tag.
type QueryValidator struct {
	decoder   *form.Decoder
	validator *validator.Validate
}

// NewQueryValidator creates a validator with the isodate rule registered
func NewQueryValidator() *QueryValidator {
	d := form.NewDecoder()
	d.SetTagName("query")

	v := validator.New()
	_ = v.RegisterValidation("isodate", isISODate)
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("query"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &QueryValidator{decoder: d, validator: v}
}

// ValidateStruct validates v and returns a VALIDATION error naming every bad field
func (q *QueryValidator) ValidateStruct(v interface{}) error {
	err := q.validator.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewAppError(apperrors.ErrTypeValidation, "invalid request", err)
	}

	messages := make([]string, 0, len(fieldErrs))
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := formatValidationError(fe)
		messages = append(messages, msg)
		fields[fe.Field()] = msg
	}
	return apperrors.NewAppValidationError(strings.Join(messages, "; ")).
		WithContext("fields", fields)
}

// DecodeQuery fills the `query`-tagged fields of dst from values, then
// validates it. dst must be a pointer to a struct.
func (q *QueryValidator) DecodeQuery(values url.Values, dst interface{}) error {
	if err := q.decoder.Decode(dst, values); err != nil {
		var decodeErrs form.DecodeErrors
		if !errors.As(err, &decodeErrs) {
			return fmt.Errorf("failed to decode query: %w", err)
		}

		names := make([]string, 0, len(decodeErrs))
		for name := range decodeErrs {
			names = append(names, name)
		}
		sort.Strings(names)

		messages := make([]string, 0, len(names))
		fields := make(map[string]string, len(names))
		for _, name := range names {
			fields[name] = "must be a valid value"
			messages = append(messages, fmt.Sprintf("%s must be a valid value", name))
		}
		return apperrors.NewAppValidationError(strings.Join(messages, "; ")).
			WithContext("fields", fields)
	}

	return q.ValidateStruct(dst)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "isodate":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// isISODate accepts strict YYYY-MM-DD calendar dates
func isISODate(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) != len(domain.DateLayout) {
		return false
	}
	_, err := time.Parse(domain.DateLayout, s)
	return err == nil
}
