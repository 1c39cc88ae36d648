package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"cvforge/internal/types"
)

// Validator checks decoded request structs against their `validate`
// tags and converts failures into client-facing AppErrors keyed by the
// field's JSON name.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator builds a Validator that reports field names from json
// tags, so error details match the wire format clients sent.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{validate: v, logger: logger}
}

// Struct validates s and returns nil or a single AppError describing
// the first failed field. One error at a time keeps the response small
// and matches how clients fix and resubmit forms.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		// InvalidValidationError: the caller passed a non-struct.
		v.logger.Error("validator invoked on non-struct value", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected,
			"request validation failed", err)
	}

	return fieldError(verrs[0])
}

// fieldError maps a single tag failure to the matching error code.
func fieldError(fe validator.FieldError) *types.AppError {
	details := map[string]any{"field": fe.Field()}

	switch fe.Tag() {
	case "required":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationMissingField,
			"missing required field: "+fe.Field(), nil, details)
	case "email":
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidEmail,
			"invalid email address", nil, details)
	default:
		details["constraint"] = fe.Tag()
		if fe.Param() != "" {
			details["param"] = fe.Param()
		}
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidField,
			"invalid value for field: "+fe.Field(), nil, details)
	}
}
