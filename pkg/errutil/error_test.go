package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsMatchesByReason(t *testing.T) {
	err := QuotaExceeded("daily limit reached", WithDetails(Detail{Field: "limit", Message: "30"}))

	require.True(t, errors.Is(err, ErrQuotaExceeded))
	require.False(t, errors.Is(err, ErrAlreadyWatched))

	wrapped := fmt.Errorf("record watch: %w", err)
	require.True(t, errors.Is(wrapped, ErrQuotaExceeded))
}

func TestPlainErrorDoesNotMatchReasonlessTarget(t *testing.T) {
	err := Internal("boom", nil)
	require.False(t, errors.Is(err, BaseError{Code: StatusInternal}))
}

func TestHelpersKeepCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient("store unavailable", cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, ReasonTransientStoreFailure, ReasonOf(err))
	require.Equal(t, http.StatusServiceUnavailable, From(err).Code.HTTPStatus())
}

func TestFromNormalisesContextErrors(t *testing.T) {
	be := From(context.DeadlineExceeded)
	require.Equal(t, ReasonTransientStoreFailure, be.Reason)
	require.Equal(t, http.StatusServiceUnavailable, be.Code.HTTPStatus())

	be = From(errors.New("plain"))
	require.Equal(t, StatusInternal, be.Code)
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("missing", nil), http.StatusNotFound},
		{QuotaExceeded("quota"), http.StatusTooManyRequests},
		{AlreadyWatched("dup", nil), http.StatusConflict},
		{BelowMinimum("small"), http.StatusBadRequest},
		{InsufficientFunds("poor"), http.StatusUnprocessableEntity},
		{InvalidInput("bad"), http.StatusBadRequest},
		{InvalidTransition("nope"), http.StatusConflict},
		{Unauthorized("who", nil), http.StatusUnauthorized},
		{New(StatusUnknown, "mystery"), http.StatusInternalServerError},
		{ServiceUnavailable("later", nil), http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, From(tc.err).Code.HTTPStatus(), tc.err.Error())
	}
}
