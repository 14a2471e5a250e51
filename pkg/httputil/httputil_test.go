package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
	"github.com/platinummonkey/potkeeper/pkg/contextkeys"
	"github.com/platinummonkey/potkeeper/pkg/observability"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteOK(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, WriteOK(rec, Body{"count": 2}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["count"])

	rec = httptest.NewRecorder()
	require.NoError(t, WriteCreated(rec, nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])
}

func TestWriteAppError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"validation", apperr.Validationf("name is required"), http.StatusBadRequest, "name is required"},
		{"not found", apperr.NotFoundf("pot not found"), http.StatusNotFound, "pot not found"},
		{"conflict", apperr.Conflictf("email already registered"), http.StatusConflict, "email already registered"},
		{"internal hides cause", errors.New("pq: relation does not exist"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/pots/p1", nil)

			WriteAppError(rec, req, observability.NewLogger(observability.InfoLevel, &logs), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decode(t, rec)["error"])
			if tt.status == http.StatusInternalServerError {
				assert.Contains(t, logs.String(), "relation does not exist")
			} else {
				assert.Empty(t, logs.String())
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	var dest struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Fern"}`))
	require.NoError(t, ParseJSON(req, &dest))
	assert.Equal(t, "Fern", dest.Name)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))
	assert.True(t, apperr.Is(ParseJSON(req, &dest), apperr.Validation))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err := ParseJSON(req, &dest)
	assert.Equal(t, "request body is required", apperr.Message(err))
}

func TestParseJSONOrError(t *testing.T) {
	var dest map[string]interface{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`[`))

	assert.False(t, ParseJSONOrError(rec, req, &dest))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPathParams(t *testing.T) {
	req := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "42", "potId": "p-1"})

	id, err := PathInt64(req, "id")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	potID, err := PathString(req, "potId")
	require.NoError(t, err)
	assert.Equal(t, "p-1", potID)

	_, err = PathString(req, "missing")
	assert.True(t, apperr.Is(err, apperr.Validation))

	bad := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "abc"})
	_, err = PathInt64(bad, "id")
	assert.True(t, apperr.Is(err, apperr.Validation))

	negative := mux.SetURLVars(httptest.NewRequest(http.MethodGet, "/", nil), map[string]string{"id": "-3"})
	_, err = PathInt64(negative, "id")
	assert.Error(t, err)
}

func TestQueryParams(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?page=3&search=%20fern%20&bad=x", nil)

	page, err := QueryInt(req, "page", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, page)

	size, err := QueryInt(req, "pageSize", 20)
	require.NoError(t, err)
	assert.Equal(t, 20, size)

	_, err = QueryInt(req, "bad", 0)
	assert.Error(t, err)

	assert.Equal(t, "fern", QueryString(req, "search", ""))
	assert.Equal(t, "x", QueryString(req, "missing", "x"))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = contextkeys.GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "client-id")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "client-id", seen)
}

func TestRecoveryMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &logs)
	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/pots", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decode(t, rec)["error"])
	assert.Contains(t, logs.String(), "handler exploded")
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware([]string{"https://app.example.com"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodOptions, "/pots", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/pots", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoggingMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger := observability.NewLogger(observability.InfoLevel, &logs)

	handler := Chain(RequestIDMiddleware, LoggingMiddleware(logger))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/pots", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, float64(http.StatusCreated), entry["status"])
	assert.NotEmpty(t, entry["request_id"])
}

func TestMaxBytesMiddleware(t *testing.T) {
	handler := MaxBytesMiddleware(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var dest map[string]interface{}
		if err := ParseJSON(r, &dest); err != nil {
			WriteBadRequest(w, apperr.Message(err))
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"a long value"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "request body too large", decode(t, rec)["error"])
}
