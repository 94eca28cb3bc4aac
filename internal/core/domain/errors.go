// Package domain provides the canonical error envelope shared by every layer.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ErrorResponse is the JSON body written for every error response.
type ErrorResponse struct {
	// Code is the upper-snake form of the status reason phrase (e.g. NOT_FOUND).
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`
}

// NewErrorResponse creates an error envelope with an explicit code.
func NewErrorResponse(code, message string) ErrorResponse {
	return ErrorResponse{Code: code, Message: message}
}

// ErrorResponseFromStatus creates an error envelope whose code is derived from status.
// An empty message falls back to the status reason phrase.
func ErrorResponseFromStatus(status int, message string) ErrorResponse {
	if message == "" {
		message = ReasonPhrase(status)
	}
	return ErrorResponse{Code: StatusToErrorCode(status), Message: message}
}

// StatusToErrorCode maps an HTTP status to its upper-snake error code.
// Statuses without a known reason phrase map to "ERROR".
func StatusToErrorCode(status int) string {
	text := statusText(status)
	if text == "" {
		return "ERROR"
	}
	return strings.ToUpper(strings.ReplaceAll(text, " ", "_"))
}

// ReasonPhrase returns the canonical reason phrase for status, or "Error" when unknown.
func ReasonPhrase(status int) string {
	if text := statusText(status); text != "" {
		return text
	}
	return "Error"
}

// reasonOverrides holds current reason phrases where net/http keeps legacy names.
var reasonOverrides = map[int]string{
	http.StatusRequestEntityTooLarge:        "Payload Too Large",
	http.StatusRequestURITooLong:            "URI Too Long",
	http.StatusRequestedRangeNotSatisfiable: "Range Not Satisfiable",
}

func statusText(status int) string {
	if text, ok := reasonOverrides[status]; ok {
		return text
	}
	return http.StatusText(status)
}

// Bytes encodes the envelope. Encoding two strings cannot fail.
func (e ErrorResponse) Bytes() []byte {
	b, _ := json.Marshal(e)
	return b
}

// HTTPError is implemented by errors that know how they should be rendered.
type HTTPError interface {
	error
	HTTPStatusCode() int
}

// APIError is a canonical error a handler can return to produce a specific status.
type APIError struct {
	// StatusCode is the HTTP status to respond with.
	StatusCode int `json:"-"`

	// Code overrides the status-derived code when set.
	Code string `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Err is an optional underlying cause.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrorCode(), e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode(), e.Message)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatusCode returns the status to respond with, defaulting to 500.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return e.StatusCode
}

// ErrorCode returns the explicit code or the one derived from the status.
func (e *APIError) ErrorCode() string {
	if e.Code != "" {
		return e.Code
	}
	return StatusToErrorCode(e.HTTPStatusCode())
}

// Response converts the error into its JSON envelope.
func (e *APIError) Response() ErrorResponse {
	return NewErrorResponse(e.ErrorCode(), e.Message)
}

// NewAPIError creates a new API error.
func NewAPIError(status int, message string) *APIError {
	return &APIError{StatusCode: status, Message: message}
}

// WithCode sets an explicit error code.
func (e *APIError) WithCode(code string) *APIError {
	e.Code = code
	return e
}

// WithCause attaches an underlying error.
func (e *APIError) WithCause(err error) *APIError {
	e.Err = err
	return e
}

// Convenience constructors for common errors

// ErrBadRequest creates a 400 error.
func ErrBadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, message)
}

// ErrNotFound creates a 404 error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(http.StatusNotFound, message)
}

// ErrInternal creates a 500 error.
func ErrInternal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, message)
}

// WriteError writes a JSON error envelope for status.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteResponse(w, status, ErrorResponseFromStatus(status, message))
}

// WriteResponse writes body as JSON with status.
func WriteResponse(w http.ResponseWriter, status int, body ErrorResponse) {
	b := body.Bytes()
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// WriteHTTPError renders err. Errors implementing HTTPError keep their status,
// anything else becomes a 500 carrying the error text.
func WriteHTTPError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		WriteResponse(w, apiErr.HTTPStatusCode(), apiErr.Response())
		return
	}
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		WriteError(w, httpErr.HTTPStatusCode(), httpErr.Error())
		return
	}
	WriteError(w, http.StatusInternalServerError, err.Error())
}
