package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the acting account lacks the administrator role.
	ErrForbidden = errors.New("actor is not an administrator")
)
