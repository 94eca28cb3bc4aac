// Package auth validates bearer credentials for the authentication layer.
//
// A Validator decides whether a raw credential is acceptable. Three variants are
// provided: JWT (HS256 signed tokens), APIKeys (SHA-256 hashed static keys) and
// ValidatorFunc (an arbitrary closure). Validators never perform network calls.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// BearerPrefix is the exact prefix stripped from the Authorization header.
const BearerPrefix = "Bearer "

// Validator checks a raw credential.
// Implementations must be safe for concurrent use.
type Validator interface {
	Validate(ctx context.Context, token string) error
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, token string) error

// Validate calls f(ctx, token).
func (f ValidatorFunc) Validate(ctx context.Context, token string) error {
	return f(ctx, token)
}

// Kind classifies a validation failure.
type Kind int

const (
	KindMissingCredential Kind = iota + 1
	KindMalformed
	KindExpired
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindMissingCredential:
		return "missing_credential"
	case KindMalformed:
		return "malformed"
	case KindExpired:
		return "expired"
	case KindForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Error is a validation failure. Two Errors match with errors.Is when their
// kinds are equal, so the package sentinels can be used as targets.
type Error struct {
	Kind Kind

	// Reason describes a malformed credential.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

var (
	ErrMissingCredential = &Error{Kind: KindMissingCredential}
	ErrMalformed         = &Error{Kind: KindMalformed}
	ErrExpired           = &Error{Kind: KindExpired}
	ErrForbidden         = &Error{Kind: KindForbidden}
)

// Malformed creates a malformed-credential error with a reason.
func Malformed(reason string, err error) *Error {
	return &Error{Kind: KindMalformed, Reason: reason, Err: err}
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingCredential:
		return "Missing authorization token"
	case KindMalformed:
		if e.Reason == "" {
			return "Invalid token"
		}
		return fmt.Sprintf("Invalid token: %s", e.Reason)
	case KindExpired:
		return "Token has expired"
	case KindForbidden:
		return "Insufficient permissions"
	default:
		return "Authentication failed"
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// HTTPStatusCode is 403 for forbidden credentials and 401 otherwise.
func (e *Error) HTTPStatusCode() int {
	if e.Kind == KindForbidden {
		return http.StatusForbidden
	}
	return http.StatusUnauthorized
}

// AsError converts any validator failure into an *Error.
// Errors that are not already an *Error are reported as malformed.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}
	return Malformed(err.Error(), err)
}

// ExtractBearer returns the credential following the exact "Bearer " prefix.
// A missing header or any other scheme is reported as ErrMissingCredential.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingCredential
	}
	token, ok := strings.CutPrefix(header, BearerPrefix)
	if !ok {
		return "", ErrMissingCredential
	}
	return token, nil
}

// Authenticate extracts the bearer credential from r and validates it with v.
func Authenticate(ctx context.Context, v Validator, r *http.Request) *Error {
	token, err := ExtractBearer(r)
	if err != nil {
		return AsError(err)
	}
	return AsError(v.Validate(ctx, token))
}
