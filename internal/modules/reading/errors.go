package reading

import (
	"errors"
	"fmt"
	"net/http"

	repos "github.com/yungbote/readsession-backend/internal/data/repos/reading"
	types "github.com/yungbote/readsession-backend/internal/domain/reading"
	"github.com/yungbote/readsession-backend/internal/platform/apierr"
)

// Kinds of caller-correctable failures. Match with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation error")
	ErrInvalidPhase      = errors.New("invalid phase")
	ErrInvalidTransition = errors.New("invalid transition")
)

// Error carries a kind plus enough detail for the caller to fix the request.
type Error struct {
	Kind    error
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return e.Kind.Error()
}

func (e *Error) Unwrap() error { return e.Kind }

func validationErr(field, format string, args ...any) error {
	return &Error{Kind: ErrValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

func invalidPhaseErr(format string, args ...any) error {
	return &Error{Kind: ErrInvalidPhase, Message: fmt.Sprintf(format, args...)}
}

func invalidTransitionErr(from, to types.Phase) error {
	return &Error{Kind: ErrInvalidTransition, Message: fmt.Sprintf("cannot move from %s to %s", from, to)}
}

func notFoundErr(what string) error {
	return &Error{Kind: ErrNotFound, Message: what + " not found"}
}

func forbiddenErr() error {
	return &Error{Kind: ErrForbidden, Message: "session belongs to another user"}
}

// APIError maps any usecase error onto the HTTP error taxonomy. Errors that
// are not core kinds are internal and retryable.
func APIError(err error) *apierr.Error {
	if err == nil {
		return nil
	}
	if ae, ok := apierr.As(err); ok {
		return ae
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return apierr.New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, ErrForbidden):
		return apierr.New(http.StatusForbidden, "forbidden", err)
	case errors.Is(err, ErrValidation):
		return apierr.New(http.StatusUnprocessableEntity, "validation_error", err)
	case errors.Is(err, ErrInvalidPhase):
		return apierr.New(http.StatusConflict, "invalid_phase", err)
	case errors.Is(err, ErrInvalidTransition):
		return apierr.New(http.StatusConflict, "invalid_transition", err)
	case errors.Is(err, repos.ErrConflict):
		return apierr.New(http.StatusConflict, "conflict", err)
	default:
		return apierr.Internal("internal_error", err)
	}
}
