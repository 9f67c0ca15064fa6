package shared

import "errors"

var (
	// ErrNotFound indicates a missing entity or cross-tenant access.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates invalid input such as non-positive quantities.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a stale version, duplicate key or serialization failure.
	ErrConflict = errors.New("conflict")
	// ErrInsufficientStock indicates FIFO consumption cannot satisfy demand.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrForbidden indicates a branch-membership or approval-role violation.
	ErrForbidden = errors.New("forbidden")
)

// UserSafeMessage returns a message suitable for end users. Internal errors
// collapse to a generic message so details never leak through handlers.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrForbidden):
		return err.Error()
	default:
		return "internal error, please try again"
	}
}
