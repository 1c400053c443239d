package billing

import "errors"

var (
	// ErrNotFound means the student id does not exist.
	ErrNotFound = errors.New("student not found")

	// ErrInvalidAmount means a payment amount was zero or negative.
	ErrInvalidAmount = errors.New("payment amount must be positive")

	// ErrInvalidInput means a create/update payload failed validation.
	ErrInvalidInput = errors.New("invalid input")
)
