package common

import (
	"encoding/json"
	"net/http"
	"sync"

	validator "github.com/go-playground/validator/v10"
)

// MsgInvalidPayload is returned for malformed or rejected JSON bodies.
const MsgInvalidPayload = "invalid payload"

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// DecodeJSON decodes the request body into dst and validates its struct tags.
func DecodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return NewAppError(KindValidation, MsgInvalidPayload, err)
	}
	if err := Validator().Struct(dst); err != nil {
		appErr := NewAppError(KindValidation, MsgInvalidPayload, err)
		if fields, ok := err.(validator.ValidationErrors); ok {
			details := make(map[string]string, len(fields))
			for _, f := range fields {
				details[f.Field()] = f.Tag()
			}
			appErr.Details = details
		}
		return appErr
	}
	return nil
}
