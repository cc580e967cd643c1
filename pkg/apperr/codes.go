package apperr

import "github.com/valyala/fasthttp"

type Kind string

const (
	KindUnknown       Kind = "UNKNOWN"
	KindAuth          Kind = "AUTH_FAILURE"
	KindValidation    Kind = "VALIDATION_FAILURE"
	KindAuthorization Kind = "AUTHORIZATION_FAILURE"
	KindPersistence   Kind = "PERSISTENCE_FAILURE"
	KindNotFound      Kind = "NOT_FOUND"
	KindConflict      Kind = "CONFLICT"
)

// HTTPStatus maps an error's kind to a response status.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuth:
		return fasthttp.StatusUnauthorized
	case KindValidation:
		return fasthttp.StatusBadRequest
	case KindAuthorization:
		return fasthttp.StatusForbidden
	case KindNotFound:
		return fasthttp.StatusNotFound
	case KindConflict:
		return fasthttp.StatusConflict
	case KindPersistence:
		return fasthttp.StatusServiceUnavailable
	default:
		return fasthttp.StatusInternalServerError
	}
}
