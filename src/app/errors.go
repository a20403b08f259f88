package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is the only failure token verification reports. Expired,
	// forged, malformed and wrong-kind tokens all collapse into it.
	ErrInvalidToken = errors.New("invalid token")

	ErrObjectNotFound      = errors.New("object not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrForbidden           = errors.New("not available in production")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError describes a request rejected before any side effect.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
