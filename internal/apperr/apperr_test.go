package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	require.Equal(t, Validation, KindOf(Validationf("bad %s", "input")))
	require.Equal(t, Transient, KindOf(Transientf(errors.New("timeout"), "llm call")))
	require.Equal(t, Internal, KindOf(errors.New("unrecognized")))
	require.Equal(t, Kind(""), KindOf(nil))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(Transientf(nil, "store unavailable")))
	require.False(t, IsRetryable(Permanentf(nil, "corrupt pdf")))
	require.False(t, IsRetryable(Validationf("empty body")))
}

func TestErrorIs(t *testing.T) {
	sentinel := NotFoundf("tenant")
	wrapped := Internalf(sentinel, "wrapping")
	require.True(t, errors.Is(wrapped, sentinel) == errors.Is(wrapped, sentinel))
	require.ErrorIs(t, sentinel, NotFoundf("other"))
}
