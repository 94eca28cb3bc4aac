package server

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/tjfontaine/server-kit/internal/core/domain"
	"github.com/tjfontaine/server-kit/internal/pkg/config"
)

// JSONErrorMiddleware rewrites error responses into the JSON error envelope.
//
// Responses with a status below 400 and error responses that already declare an
// application/json content type pass through untouched. Any other error body is
// buffered and replaced by {"code": ..., "message": ...}. The message is the
// original body text unless it is empty or the environment is production, in
// which case the status reason phrase is used. Gzip and deflate bodies are
// decoded first; other encodings fall back to the reason phrase. Headers are
// kept apart from Content-Type, Content-Length and Content-Encoding.
func JSONErrorMiddleware(env *config.EnvironmentFlag) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jw := &jsonErrorWriter{ResponseWriter: w}
			next.ServeHTTP(jw, r)
			jw.finish(env.Get())
		})
	}
}

// isJSON reports whether a Content-Type value names a JSON body.
func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

// jsonErrorWriter buffers error bodies that need rewriting.
type jsonErrorWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	intercept   bool
	body        bytes.Buffer
}

func (jw *jsonErrorWriter) WriteHeader(code int) {
	if jw.wroteHeader {
		return
	}
	if code < http.StatusOK {
		jw.ResponseWriter.WriteHeader(code)
		return
	}
	jw.wroteHeader = true
	jw.status = code
	if code >= http.StatusBadRequest && !isJSON(jw.Header().Get("Content-Type")) {
		jw.intercept = true
		return
	}
	jw.ResponseWriter.WriteHeader(code)
}

func (jw *jsonErrorWriter) Write(b []byte) (int, error) {
	if !jw.wroteHeader {
		jw.WriteHeader(http.StatusOK)
	}
	if jw.intercept {
		return jw.body.Write(b)
	}
	return jw.ResponseWriter.Write(b)
}

// Flush forwards Flush to the underlying ResponseWriter unless the body is being buffered.
func (jw *jsonErrorWriter) Flush() {
	if jw.intercept {
		return
	}
	if !jw.wroteHeader {
		jw.WriteHeader(http.StatusOK)
	}
	if f, ok := jw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (jw *jsonErrorWriter) Unwrap() http.ResponseWriter {
	return jw.ResponseWriter
}

// finish writes the envelope for an intercepted response.
func (jw *jsonErrorWriter) finish(env config.Environment) {
	if !jw.intercept {
		return
	}

	h := jw.Header()
	var message string
	if !env.IsProduction() {
		if text, ok := decodeBody(h.Get("Content-Encoding"), jw.body.Bytes()); ok {
			message = strings.TrimSuffix(strings.ToValidUTF8(string(text), "\uFFFD"), "\n")
		}
	}
	h.Del("Content-Encoding")

	domain.WriteResponse(jw.ResponseWriter, jw.status, domain.ErrorResponseFromStatus(jw.status, message))
}

// maxDecodedErrorBody bounds how much of an encoded error body is inflated.
const maxDecodedErrorBody = 64 << 10

// decodeBody undoes the gzip and deflate encodings chi's Compress produces.
// Other encodings, or a body that fails to decode, report false.
func decodeBody(encoding string, body []byte) ([]byte, bool) {
	var r io.ReadCloser
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, true
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, false
		}
		r = gz
	case "deflate":
		r = flate.NewReader(bytes.NewReader(body))
	default:
		return nil, false
	}
	defer r.Close()

	text, err := io.ReadAll(io.LimitReader(r, maxDecodedErrorBody))
	if err != nil {
		return nil, false
	}
	return text, true
}
