package usecase

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"jobboard/internal/domain"

	"github.com/go-playground/validator/v10"
)

var webURLPattern = regexp.MustCompile(`^https?://.+\..+$`)

// fieldMessages are the messages shown next to each form field.
var fieldMessages = map[string]string{
	"role":        "Role is required",
	"company":     "Company is required",
	"company_url": "Valid URL is required",
	"description": "Description is required",
	"heading":     "Heading is required",
	"applylink":   "Valid URL is required",
}

// ValidationError lists every invalid field of a posting form, keyed by
// its JSON name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return "invalid posting: " + strings.Join(parts, "; ")
}

// NewPostingValidator returns a validator that understands the tags used
// on domain.PostingFields.
func NewPostingValidator() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("nonblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	_ = validate.RegisterValidation("weburl", func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		return strings.TrimSpace(v) != "" && webURLPattern.MatchString(v)
	})

	return validate
}

// validateFields checks f and returns a *ValidationError naming every
// failing field, or nil.
func validateFields(validate *validator.Validate, f domain.PostingFields) error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()]
		if !ok {
			msg = fmt.Sprintf("failed on the '%s' tag", fe.Tag())
		}
		out.Fields[fe.Field()] = msg
	}
	return out
}
