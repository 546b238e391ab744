package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	// MaxRequestBodySize is the maximum allowed request body size (64KB).
	MaxRequestBodySize = 64 << 10
)

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("request body is empty")

// DecodeJSON decodes a single JSON value from the request body. Unknown
// fields are rejected and the body is capped at MaxRequestBodySize.
func DecodeJSON[T any](r *http.Request) (T, error) {
	var zero T

	if r.Body == nil || r.Body == http.NoBody {
		return zero, ErrEmptyBody
	}

	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)
	defer func() {
		_ = r.Body.Close()
	}()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var v T
	if err := dec.Decode(&v); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		var maxBytesErr *http.MaxBytesError

		switch {
		case errors.Is(err, io.EOF):
			return zero, ErrEmptyBody
		case errors.As(err, &syntaxErr):
			return zero, fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
		case errors.As(err, &typeErr):
			return zero, fmt.Errorf("invalid value for field %q", typeErr.Field)
		case errors.As(err, &maxBytesErr):
			return zero, fmt.Errorf("request body too large (max %d bytes)", MaxRequestBodySize)
		default:
			return zero, fmt.Errorf("failed to decode JSON: %w", err)
		}
	}

	if dec.More() {
		return zero, errors.New("request body contains multiple JSON values")
	}

	return v, nil
}

// DecodeOptionalJSON is DecodeJSON for endpoints where the body may be
// omitted. An empty body yields the zero value and no error.
func DecodeOptionalJSON[T any](r *http.Request) (T, error) {
	v, err := DecodeJSON[T](r)
	if errors.Is(err, ErrEmptyBody) {
		return v, nil
	}
	return v, err
}
