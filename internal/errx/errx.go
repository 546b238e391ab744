// Package errx provides the error kinds surfaced by the QR history client.
// Kinds describe where a failure came from (transport, response shape, server
// rejection) so presentation code can pick a message and the gateway can pick
// an HTTP status.
package errx

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	Unknown Kind = iota
	// Invalid is a local input rejection; no request was sent.
	Invalid
	// Network is a transport failure: no response was received.
	Network
	// Malformed is a success response whose body has an unexpected shape.
	Malformed
	// Validation is a server-side rejection of create input.
	Validation
	// DeleteFailed is a server-side rejection of a delete.
	DeleteFailed
	// Unavailable is any other non-2xx server response.
	Unavailable
)

type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func E(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case Unknown:
		return "Unknown"
	case Invalid:
		return "Invalid"
	case Network:
		return "Network"
	case Malformed:
		return "Malformed"
	case Validation:
		return "Validation"
	case DeleteFailed:
		return "DeleteFailed"
	case Unavailable:
		return "Unavailable"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

func OpOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// MessageOf returns the user-facing message of err: the text of the innermost
// cause below the errx chain, without op prefixes.
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	for {
		var e *Error
		if !errors.As(err, &e) || e.Err == nil {
			return err.Error()
		}
		err = e.Err
	}
}
