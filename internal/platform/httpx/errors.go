package httpx

import (
	"errors"
	"log/slog"
	"net/http"
)

// Sentinel errors shared by handlers.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
)

// Error codes understood by the portal UI.
const (
	CodeValidation = "VALIDATION"
	CodeNotFound   = "NOT_FOUND"
	CodeForbidden  = "FORBIDDEN"
	CodeInternal   = "INTERNAL"
)

// ErrorMapping binds a domain sentinel to a status code and machine readable code.
type ErrorMapping struct {
	Target error
	Status int
	Code   string
}

var baseMappings = []ErrorMapping{
	{Target: ErrNotFound, Status: http.StatusNotFound, Code: CodeNotFound},
	{Target: ErrValidation, Status: http.StatusBadRequest, Code: CodeValidation},
	{Target: ErrForbidden, Status: http.StatusForbidden, Code: CodeForbidden},
}

// RespondError maps err through mappings (checked first) and the base
// mappings. Unknown errors become a 500 whose body never carries err's text.
// The written status is returned so callers can decide how loudly to log.
func RespondError(w http.ResponseWriter, err error, mappings ...ErrorMapping) int {
	for _, set := range [][]ErrorMapping{mappings, baseMappings} {
		for _, m := range set {
			if errors.Is(err, m.Target) {
				Error(w, m.Status, m.Code, err.Error())
				return m.Status
			}
		}
	}
	Error(w, http.StatusInternalServerError, CodeInternal, "internal error")
	return http.StatusInternalServerError
}

// Fail writes the mapped error response and logs it. Server errors are logged
// with the underlying cause; rejections are logged at info.
func Fail(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error, mappings ...ErrorMapping) {
	status := RespondError(w, err, mappings...)
	if logger == nil {
		return
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
		return
	}
	logger.Info("request rejected", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Int("status", status), slog.String("reason", err.Error()))
}
