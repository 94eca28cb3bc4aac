package server

import (
	"compress/flate"
	"compress/gzip"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/server-kit/internal/pkg/config"
)

func serveJSONError(t *testing.T, env config.Environment, h http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	JSONErrorMiddleware(config.NewEnvironmentFlag(env))(h).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	return rec
}

func TestJSONErrorMiddleware_RewritesTextErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     config.Environment
		handler http.HandlerFunc
		status  int
		body    string
	}{
		{
			name:    "not found in development",
			env:     config.Development,
			handler: http.NotFound,
			status:  http.StatusNotFound,
			body:    `{"code":"NOT_FOUND","message":"404 page not found"}`,
		},
		{
			name:    "not found in production",
			env:     config.Production,
			handler: http.NotFound,
			status:  http.StatusNotFound,
			body:    `{"code":"NOT_FOUND","message":"Not Found"}`,
		},
		{
			name: "internal error hides detail in production",
			env:  config.Production,
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "db password is hunter2", http.StatusInternalServerError)
			},
			status: http.StatusInternalServerError,
			body:   `{"code":"INTERNAL_SERVER_ERROR","message":"Internal Server Error"}`,
		},
		{
			name: "empty body uses reason phrase",
			env:  config.Development,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusRequestTimeout)
			},
			status: http.StatusRequestTimeout,
			body:   `{"code":"REQUEST_TIMEOUT","message":"Request Timeout"}`,
		},
		{
			name: "unregistered status",
			env:  config.Development,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(499)
			},
			status: 499,
			body:   `{"code":"ERROR","message":"Error"}`,
		},
		{
			name: "invalid utf-8 is replaced",
			env:  config.Development,
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte("bad \xff input"))
			},
			status: http.StatusBadRequest,
			body:   `{"code":"BAD_REQUEST","message":"bad ` + "�" + ` input"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveJSONError(t, tt.env, tt.handler)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.body, rec.Body.String())
			assert.Equal(t, len(rec.Body.Bytes()), mustAtoi(t, rec.Header().Get("Content-Length")))
		})
	}
}

func TestJSONErrorMiddleware_KeepsOtherHeaders(t *testing.T) {
	rec := serveJSONError(t, config.Development, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("<h1>down</h1>"))
	})

	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"code":"SERVICE_UNAVAILABLE","message":"<h1>down</h1>"}`, rec.Body.String())
}

func TestJSONErrorMiddleware_PassesJSONErrors(t *testing.T) {
	const body = `{"error":"custom"}`
	rec := serveJSONError(t, config.Production, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(body))
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, body, rec.Body.String())
}

func TestJSONErrorMiddleware_PassesSuccess(t *testing.T) {
	const body = "plain success \xff bytes"
	rec := serveJSONError(t, config.Production, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(body))
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, body, rec.Body.String())
}

func TestJSONErrorMiddleware_FixedPoint(t *testing.T) {
	env := config.NewEnvironmentFlag(config.Development)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})

	once := httptest.NewRecorder()
	JSONErrorMiddleware(env)(inner).ServeHTTP(once, httptest.NewRequest("GET", "/", nil))

	twice := httptest.NewRecorder()
	JSONErrorMiddleware(env)(JSONErrorMiddleware(env)(inner)).ServeHTTP(twice, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, once.Code, twice.Code)
	assert.Equal(t, once.Body.String(), twice.Body.String())
	assert.JSONEq(t, `{"code":"FORBIDDEN","message":"nope"}`, twice.Body.String())
}

func TestJSONErrorMiddleware_EncodedBody(t *testing.T) {
	gzipped := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusBadGateway)
		gz := gzip.NewWriter(w)
		gz.Write([]byte("upstream exploded\n"))
		gz.Close()
	}
	deflated := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "deflate")
		w.WriteHeader(http.StatusBadGateway)
		fw, _ := flate.NewWriter(w, flate.DefaultCompression)
		fw.Write([]byte("upstream exploded"))
		fw.Close()
	}
	brotli := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "br")
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte{0x1b, 0x02, 0x00})
	}

	tests := []struct {
		name    string
		env     config.Environment
		handler http.HandlerFunc
		message string
	}{
		{"gzip in development", config.Development, gzipped, "upstream exploded"},
		{"deflate in development", config.Development, deflated, "upstream exploded"},
		{"gzip in production", config.Production, gzipped, "Bad Gateway"},
		{"unknown encoding", config.Development, brotli, "Bad Gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveJSONError(t, tt.env, tt.handler)

			assert.Equal(t, http.StatusBadGateway, rec.Code)
			assert.Empty(t, rec.Header().Get("Content-Encoding"))
			assert.JSONEq(t, `{"code":"BAD_GATEWAY","message":"`+tt.message+`"}`, rec.Body.String())
		})
	}
}

func TestJSONErrorMiddleware_CompressedByStack(t *testing.T) {
	r := NewRouter(StackConfig{
		Logger:      discardLogger(),
		Environment: config.NewEnvironmentFlag(config.Development),
		Compression: true,
	})
	r.Get("/widget", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "widget 42 missing", http.StatusNotFound)
	})

	for _, enc := range []string{"", "gzip", "deflate"} {
		rec := do(r, "GET", "/widget", http.Header{"Accept-Encoding": {enc}})

		assert.Equal(t, http.StatusNotFound, rec.Code, enc)
		assert.Empty(t, rec.Header().Get("Content-Encoding"), enc)
		assert.JSONEq(t, `{"code":"NOT_FOUND","message":"widget 42 missing"}`, rec.Body.String(), enc)
	}
}

func TestJSONErrorMiddleware_EnvironmentFlip(t *testing.T) {
	env := config.NewEnvironmentFlag(config.Development)
	handler := JSONErrorMiddleware(env)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "secret detail", http.StatusBadRequest)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Contains(t, rec.Body.String(), "secret detail")

	env.Set(config.Production)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.JSONEq(t, `{"code":"BAD_REQUEST","message":"Bad Request"}`, rec.Body.String())
}

func TestJSONErrorMiddleware_FlushWhileBuffering(t *testing.T) {
	rec := serveJSONError(t, config.Development, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("partial"))
		require.NoError(t, http.NewResponseController(w).Flush())
		w.Write([]byte(" body"))
	})

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.JSONEq(t, `{"code":"I'M_A_TEAPOT","message":"partial body"}`, rec.Body.String())
}
