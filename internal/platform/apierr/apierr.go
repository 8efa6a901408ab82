package apierr

import (
	"fmt"
	"net/http"

	"github.com/yungbote/valence-backend/internal/platform/enginerr"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// FromEngine maps an engine failure to an HTTP status for the read API.
func FromEngine(err error) *Error {
	kind := enginerr.KindOf(err)
	switch kind {
	case enginerr.KindUnknownType, enginerr.KindUnknownPattern, enginerr.KindAnchorNotFound:
		return New(http.StatusNotFound, string(kind), err)
	case enginerr.KindValidation, enginerr.KindInvalidSubtype, enginerr.KindSchemaMismatch:
		return New(http.StatusUnprocessableEntity, string(kind), err)
	case enginerr.KindAnchorPurity, enginerr.KindCyclicPattern:
		return New(http.StatusConflict, string(kind), err)
	case enginerr.KindSchemaUnavailable:
		return New(http.StatusServiceUnavailable, string(kind), err)
	default:
		if enginerr.IsTransient(err) {
			return New(http.StatusServiceUnavailable, "store_unavailable", err)
		}
		return New(http.StatusInternalServerError, "internal", err)
	}
}
