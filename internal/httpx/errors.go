package httpx

import (
	"net/http"

	"github.com/sundayezeilo/qrhistory/internal/errx"
)

// ErrorKindToStatus maps errx.Kind to HTTP status codes.
// Failures of the upstream QR API surface as gateway errors.
func ErrorKindToStatus(kind errx.Kind) int {
	switch kind {
	case errx.Invalid:
		return http.StatusBadRequest
	case errx.Validation:
		return http.StatusUnprocessableEntity
	case errx.Network, errx.Malformed, errx.DeleteFailed:
		return http.StatusBadGateway
	case errx.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorKindToCode maps errx.Kind to error codes for JSON responses.
func ErrorKindToCode(kind errx.Kind) string {
	switch kind {
	case errx.Invalid:
		return "invalid_input"
	case errx.Validation:
		return "validation_failed"
	case errx.Network:
		return "upstream_unreachable"
	case errx.Malformed:
		return "upstream_malformed"
	case errx.DeleteFailed:
		return "delete_failed"
	case errx.Unavailable:
		return "unavailable"
	default:
		return "internal_error"
	}
}

