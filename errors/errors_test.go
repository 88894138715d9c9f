package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapFormat(t *testing.T) {
	base := stderrors.New("dial tcp: i/o timeout")
	err := Wrap(base, "Factory", "OpenSource", "dial broker")

	require.Error(t, err)
	assert.Equal(t, "Factory.OpenSource: dial broker failed: dial tcp: i/o timeout", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.NoError(t, WrapTransient(nil, "c", "m", "a"))
	assert.NoError(t, WrapInvalid(nil, "c", "m", "a"))
	assert.NoError(t, WrapFatal(nil, "c", "m", "a"))
}

func TestClassification(t *testing.T) {
	assert.True(t, IsTransient(WrapTransient(ErrBrokerUnreachable, "c", "m", "a")))
	assert.True(t, IsInvalid(WrapInvalid(ErrUnknownCategory, "c", "m", "a")))
	assert.True(t, IsInvalid(WrapInvalid(ErrNoCredential, "c", "m", "a")))
	assert.True(t, IsFatal(WrapFatal(ErrMissingConfig, "c", "m", "a")))
	assert.True(t, IsFatal(ErrInvalidConfig))
	assert.True(t, IsInvalid(ErrUnknownConnection))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.False(t, IsFatal(stderrors.New("something odd")))
}

func TestIsTransientPatterns(t *testing.T) {
	assert.True(t, IsTransient(stderrors.New("read: connection reset by peer")))
	assert.True(t, IsTransient(stderrors.New("broker temporarily unavailable")))
	assert.False(t, IsTransient(ErrMissingConfig))
	assert.False(t, IsTransient(nil))
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	err := WrapFatal(ErrMissingConfig, "Factory", "NewFactory", "validate bootstrap")

	var ce *ClassifiedError
	require.True(t, stderrors.As(err, &ce))
	assert.Equal(t, "Factory", ce.Component)
	assert.Equal(t, "NewFactory", ce.Operation)
	assert.True(t, stderrors.Is(err, ErrMissingConfig))
}

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestWrapChainsThroughFmt(t *testing.T) {
	inner := Wrap(ErrAuthRejected, "Source", "Fetch", "read message")
	outer := fmt.Errorf("poll iteration: %w", inner)
	assert.True(t, stderrors.Is(outer, ErrAuthRejected))
}
