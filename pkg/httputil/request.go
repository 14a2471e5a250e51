package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/potkeeper/pkg/apperr"
)

// ParseJSON decodes JSON from the request body into the destination.
// Decoding failures are validation errors.
func ParseJSON(r *http.Request, dest interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validationf("request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validationf("request body too large")
		}
		return apperr.Wrap(apperr.Validation, "invalid JSON", err)
	}
	return nil
}

// ParseJSONOrError decodes JSON and writes error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteBadRequest(w, apperr.Message(err))
		return false
	}
	return true
}

// PathString returns a required path parameter.
func PathString(r *http.Request, key string) (string, error) {
	val := strings.TrimSpace(mux.Vars(r)[key])
	if val == "" {
		return "", apperr.Validationf("missing path parameter: %s", key)
	}
	return val, nil
}

// PathInt64 extracts and parses an int64 path parameter
func PathInt64(r *http.Request, key string) (int64, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return 0, apperr.Validationf("missing path parameter: %s", key)
	}
	val, err := strconv.ParseInt(str, 10, 64)
	if err != nil || val <= 0 {
		return 0, apperr.Validationf("invalid id: %s", str)
	}
	return val, nil
}

// QueryInt parses an integer query parameter, returning defaultVal when absent.
func QueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return 0, apperr.Validationf("invalid integer for %s: %s", key, str)
	}
	return val, nil
}

// QueryString returns a trimmed query parameter or defaultVal.
func QueryString(r *http.Request, key string, defaultVal string) string {
	if val := strings.TrimSpace(r.URL.Query().Get(key)); val != "" {
		return val
	}
	return defaultVal
}
