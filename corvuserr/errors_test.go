package corvuserr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corvus-rt/corvus/corvuserr"
)

func TestError_MessageIncludesCauseWhenPresent(t *testing.T) {
	cause := errors.New("dial failed")
	err := corvuserr.LoadFailed("mem://widgets", cause)

	assert.Equal(t, corvuserr.CodeLoadFailed, err.Code)
	assert.Contains(t, err.Error(), "mem://widgets")
	assert.Contains(t, err.Error(), "dial failed")
}

func TestError_MessageOmitsCauseWhenNil(t *testing.T) {
	err := corvuserr.InvalidProperties("empty key")
	assert.NotContains(t, err.Error(), "<nil>")
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := corvuserr.LoadFailed("mem://widgets", cause)
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestError_IsComparesByCode(t *testing.T) {
	a := corvuserr.InvalidBundle(1)
	b := corvuserr.InvalidBundle(2)
	assert.True(t, a.Is(b), "two invalid-bundle errors with different ids should compare equal by code")

	other := corvuserr.InvalidReference(1)
	assert.False(t, a.Is(other))

	assert.False(t, a.Is(errors.New("plain error")))
}

func TestError_IsWorksThroughErrorsIs(t *testing.T) {
	err := corvuserr.InvalidRegistration(7)
	assert.True(t, errors.Is(err, corvuserr.ErrInvalidRegistration))
	assert.False(t, errors.Is(err, corvuserr.ErrInvalidBundle))
}

func TestError_WithContextAttachesAndChains(t *testing.T) {
	err := corvuserr.New(corvuserr.CodeInvalidProperties, "bad value", nil).
		WithContext("key", "timeout").
		WithContext("value", "-1")

	assert.Equal(t, "timeout", err.Context["key"])
	assert.Equal(t, "-1", err.Context["value"])
}

func TestFrameworkError_CarriesStopFlag(t *testing.T) {
	cause := errors.New("activator panicked")

	abort := corvuserr.FrameworkError("start failed", cause, true)
	assert.True(t, abort.Stop)

	continueUnwind := corvuserr.FrameworkError("stop failed", cause, false)
	assert.False(t, continueUnwind.Stop)
}

func TestFrameworkNotRunning_ReturnsSentinel(t *testing.T) {
	assert.Same(t, corvuserr.ErrFrameworkNotRunning, corvuserr.FrameworkNotRunning())
}
