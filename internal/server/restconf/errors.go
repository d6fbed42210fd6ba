package restconf

import (
	"errors"
	"net/http"

	"github.com/yndnr/jetconf-go/internal/datastore"
)

var (
	// ErrForbidden is returned when access control denies a request.
	ErrForbidden = errors.New("restconf: access denied")

	// ErrNoHandler is returned for an operation nobody implements.
	ErrNoHandler = errors.New("restconf: no handler for operation")

	// ErrBadRequest is returned for malformed paths, queries and bodies.
	ErrBadRequest = errors.New("restconf: bad request")
)

// statusFor maps handler errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, datastore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, datastore.ErrExists):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, datastore.ErrBadInput),
		errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrNoHandler):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
