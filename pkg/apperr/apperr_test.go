package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type customKinded struct{}

func (customKinded) Error() string { return "custom limit" }
func (customKinded) Kind() Kind    { return Forbidden }

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"plain error", errors.New("boom"), Internal},
		{"not found", NotFoundf("pot not found"), NotFound},
		{"wrapped conflict", fmt.Errorf("insert: %w", Conflictf("dup")), Conflict},
		{"custom kinded", customKinded{}, Forbidden},
		{"wrapped custom", fmt.Errorf("check: %w", customKinded{}), Forbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Validation.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, Unauthenticated.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, Forbidden.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, NotFound.HTTPStatus())
	assert.Equal(t, http.StatusConflict, Conflict.HTTPStatus())
	assert.Equal(t, http.StatusTooManyRequests, RateLimited.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Internal.HTTPStatus())
}

func TestMessageHidesInternalCause(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("pq: connection refused")))
	assert.Equal(t, "internal error", Message(Wrap(Internal, "query", errors.New("secret"))))
	assert.Equal(t, "name is required", Message(Validationf("name is required")))
	assert.Equal(t, "custom limit", Message(customKinded{}))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := Wrap(Conflict, "email already registered", cause)
	assert.True(t, errors.Is(err, cause))
	assert.True(t, Is(err, Conflict))
	assert.False(t, Is(nil, Conflict))
}
