package queue

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrConflict          = errors.New("conflict")
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrForbidden         = errors.New("forbidden")
)

// Error codes shared with the HTTP layer and the client transport.
const (
	CodeValidation        = "validation"
	CodeConflict          = "conflict"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeForbidden         = "forbidden"
	CodeInternal          = "internal"
)

func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidTransition):
		return CodeInvalidTransition
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	}
	return CodeInternal
}

// ErrorForCode maps a wire code back to its sentinel. Unknown codes yield nil.
func ErrorForCode(code string) error {
	switch code {
	case CodeValidation:
		return ErrValidation
	case CodeConflict:
		return ErrConflict
	case CodeNotFound:
		return ErrNotFound
	case CodeInvalidTransition:
		return ErrInvalidTransition
	case CodeForbidden:
		return ErrForbidden
	}
	return nil
}
