package report

import "errors"

// Outcomes callers branch on with errors.Is. Only ErrStaleWrite is worth retrying.
var (
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrForbidden             = errors.New("forbidden")
	ErrNotFound              = errors.New("report not found")
	ErrStaleWrite            = errors.New("report was modified since it was read")
	ErrValidation            = errors.New("invalid report")
	ErrDuplicateTrackingCode = errors.New("tracking code already in use")
)
