package model

import "errors"

// Error kinds shared by every layer. Components wrap them with detail
// (fmt.Errorf("%w: ...", ErrX)) and callers test with errors.Is.
var (
	ErrValidation     = errors.New("validation error")
	ErrAuthorization  = errors.New("authorization error")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrUnresolvedType = errors.New("unresolved type")
	ErrStorage        = errors.New("storage error")
)

// KindOf names the error kind of err for logs and metrics.
func KindOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAuthorization):
		return "authorization"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnresolvedType):
		return "unresolved_type"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}
