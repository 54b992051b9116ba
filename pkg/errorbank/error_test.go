package errorbank

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestKindMapping(t *testing.T) {
	cases := []struct {
		err    *AppError
		status int
		code   codes.Code
	}{
		{BadRequest("x"), http.StatusBadRequest, codes.InvalidArgument},
		{Forbidden("x"), http.StatusForbidden, codes.PermissionDenied},
		{Conflict("x"), http.StatusConflict, codes.AlreadyExists},
		{NotFound("x"), http.StatusNotFound, codes.NotFound},
		{Unprocessable("x"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{Unavailable("x"), http.StatusServiceUnavailable, codes.Unavailable},
		{Internal("x"), http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		t.Run(string(tc.err.Kind()), func(t *testing.T) {
			assert.Equal(t, tc.status, tc.err.StatusCode())
			assert.Equal(t, tc.code, tc.err.GRPCCode())
		})
	}
}

func TestFromWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("boom")
	appErr := From(cause)
	require.NotNil(t, appErr)
	assert.Equal(t, KindInternal, appErr.Kind())
	assert.ErrorIs(t, appErr, cause)

	wrapped := fmt.Errorf("outer: %w", NotFound("device not found"))
	assert.Equal(t, KindNotFound, From(wrapped).Kind())
	assert.Nil(t, From(nil))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(Unavailable("db down")))
	assert.True(t, IsTransient(fmt.Errorf("update: %w", context.DeadlineExceeded)))
	assert.True(t, IsTransient(driver.ErrBadConn))

	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(Forbidden("role missing")))
	assert.False(t, IsTransient(errors.New("syntax error")))
	assert.False(t, IsTransient(Internal("wrapped", WithCause(context.DeadlineExceeded))))
}

func TestDetails(t *testing.T) {
	appErr := Conflict("busy", WithDetail("device_id", int64(7)), WithDetails(map[string]any{"run": "r1"}))
	assert.Equal(t, map[string]any{"device_id": int64(7), "run": "r1"}, appErr.Details())
	assert.Equal(t, "busy", appErr.Error())
}
