package dispatch

import "errors"

// ErrBusy is returned when the execution pool and its wait queue are both
// full. The submission was not started; the caller may retry.
var ErrBusy = errors.New("execution capacity saturated, try again shortly")

// ValidationError rejects a malformed submit request before any submission
// record is created.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// IsValidation reports whether err is a request-validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
