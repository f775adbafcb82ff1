package apperrors

import "errors"

// Sentinel errors shared across packages. Callers classify failures with
// errors.Is and wrap these with fmt.Errorf("%w: ...") to add detail.
var (
	ErrValidation   = errors.New("validation failed")
	ErrAuth         = errors.New("authentication failed")
	ErrConnection   = errors.New("cluster unreachable")
	ErrNotConnected = errors.New("not connected")
	ErrTimeout      = errors.New("operation timed out")
	ErrQuery        = errors.New("query failed")
	ErrEmptyResult  = errors.New("query returned no rows")
	ErrNotFound     = errors.New("not found")
)
