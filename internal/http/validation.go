package http

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"milkman/internal/core"
)

type settingsRequest struct {
	GlobalRate       float64 `json:"globalRate" validate:"gte=0"`
	DefaultCategory1 float64 `json:"defaultCategory1" validate:"gte=0"`
	DefaultCategory2 float64 `json:"defaultCategory2" validate:"gte=0"`
}

type overrideRequest struct {
	Date            string  `json:"date" validate:"required,datekey"`
	Category1Amount float64 `json:"category1Amount" validate:"gte=0"`
	Category2Amount float64 `json:"category2Amount" validate:"gte=0"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("datekey", func(fl validator.FieldLevel) bool {
		_, err := core.ParseDateKey(fl.Field().String())
		return err == nil
	})
	return v
}

var validate = newValidator()

// validationMessage turns validator errors into one client-facing sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("%s must not be negative", fe.Field()))
		case "datekey":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid YYYY-MM-DD date", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}

// isValidationError reports whether err came from bad client input.
func isValidationError(err error) bool {
	var verrs validator.ValidationErrors
	return errors.As(err, &verrs) ||
		errors.Is(err, core.ErrInvalidDate) ||
		errors.Is(err, core.ErrInvalidMonth) ||
		errors.Is(err, core.ErrInvalidCategory) ||
		errors.Is(err, core.ErrNegativeAmount)
}
