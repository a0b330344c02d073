package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromStatusClassifiesGatewayStatuses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		status int
		code   string
	}{
		{http.StatusBadRequest, CodeValidation},
		{http.StatusUnprocessableEntity, CodeValidation},
		{http.StatusUnauthorized, CodeUnauthorized},
		{http.StatusForbidden, CodePolicyViolation},
		{http.StatusNotFound, CodeNotFound},
		{http.StatusConflict, CodeConflict},
		{http.StatusInternalServerError, CodeTransient},
		{http.StatusBadGateway, CodeTransient},
		{http.StatusServiceUnavailable, CodeTransient},
	}
	for _, tc := range cases {
		err := FromStatus(tc.status, "")
		require.Error(t, err)
		assert.Equal(t, tc.code, CodeOf(err), "status %d", tc.status)
	}
}

func TestCodeOfSeesThroughWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("create user: %w", NewConflict("username taken", nil))
	assert.True(t, IsConflict(wrapped))
	assert.False(t, IsNotFound(wrapped))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestToDomainErrorFallsBackToInternal(t *testing.T) {
	t.Parallel()

	de := ToDomainError(errors.New("boom"))
	require.NotNil(t, de)
	assert.Equal(t, CodeInternal, de.Code)
	assert.Equal(t, http.StatusInternalServerError, de.HTTPStatus)
	assert.Nil(t, ToDomainError(nil))
}

func TestTransientKeepsCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	err := NewTransient(cause)
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, cause)
}
