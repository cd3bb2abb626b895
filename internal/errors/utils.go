package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a CharosterError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *CharosterError {
	if err == nil {
		return nil
	}

	// If it's already a CharosterError, preserve its properties but update the message
	var ce *CharosterError
	if errors.As(err, &ce) {
		var context map[string]interface{}
		if len(ce.Context) > 0 {
			context = make(map[string]interface{}, len(ce.Context))
			for k, v := range ce.Context {
				context[k] = v
			}
		}
		return &CharosterError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       ce,
			Context:     context,
			Entity:      ce.Entity,
			Path:        ce.Path,
			Recoverable: ce.Recoverable,
		}
	}

	return &CharosterError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType != ErrorTypeConfig && errType != ErrorTypeInternal,
	}
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *CharosterError {
	ce := Wrap(err, ErrorTypeIO, code, message)
	if ce != nil {
		ce.Recoverable = false
	}
	return ce
}

// WrapSourceImage wraps a codec failure for one image derivation
func WrapSourceImage(err error, code, message, imageID string) *CharosterError {
	ce := Wrap(err, ErrorTypeSourceImage, code, message)
	if ce != nil {
		ce.Entity = imageID
	}
	return ce
}

// WrapValidation wraps an error as a validation error
func WrapValidation(err error, code, message string) *CharosterError {
	return Wrap(err, ErrorTypeValidation, code, message)
}

// GetErrorType returns the type of error or "unknown" if it's not a CharosterError
func GetErrorType(err error) ErrorType {
	var ce *CharosterError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return "unknown"
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
