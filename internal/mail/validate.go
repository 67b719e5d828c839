package mail

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Struct-level rule tags reported through validator.StructLevel.
const (
	TagAttachmentSource = "attachment_source"
	TagTextOrHTML       = "text_or_html"
	TagFromRequired     = "from_required"
	TagContentSource    = "content_source"
	TagReservedHeader   = "reserved_header"
)

// ValidationError lists every field-level problem in a request.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// NewValidationError builds a ValidationError from preformatted messages.
func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

// Validator wraps go-playground/validator with JSON field names and
// human-readable messages.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		a := sl.Current().Interface().(AttachmentSpec)
		if !a.HasSource() {
			sl.ReportError(a.Content, "content", "Content", TagAttachmentSource, "")
		}
	}, AttachmentSpec{})
	return &Validator{v: v}
}

// RegisterStructValidation adds request-specific cross-field rules.
func (v *Validator) RegisterStructValidation(fn validator.StructLevelFunc, types ...any) {
	v.v.RegisterStructValidation(fn, types...)
}

// Struct validates s and returns a *ValidationError describing every failure.
func (v *Validator) Struct(s any) error {
	err := v.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &ValidationError{Fields: make([]string, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, fieldPath(fe)+": "+message(fe))
	}
	return out
}

// Var validates a single value against a tag, e.g. "email".
func (v *Validator) Var(field any, tag string) error {
	return v.v.Var(field, tag)
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "min":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			return fmt.Sprintf("must contain at least %s item(s)", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			return fmt.Sprintf("must contain at most %s item(s)", fe.Param())
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("must be at most %s characters", fe.Param())
		}
		return "must be at most " + fe.Param()
	case TagAttachmentSource:
		return "attachment must have content, path, href, or raw data"
	case TagTextOrHTML:
		return "either text or html content must be provided"
	case TagFromRequired:
		return "is required when no default sender is configured"
	case TagContentSource:
		return "either template_id or subject with text or html must be provided"
	case TagReservedHeader:
		return fmt.Sprintf("header %q is set by the server and cannot be overridden", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
