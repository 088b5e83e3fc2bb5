package sys

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

var errSentinel = errors.New("sentinel")

func TestResult_IsOk(t *testing.T) {
	tests := []struct {
		name     string
		result   Result[string]
		expected bool
	}{
		{
			name:     "Ok result",
			result:   Result[string]{Ok: "success", Err: nil},
			expected: true,
		},
		{
			name:     "Error result",
			result:   Result[string]{Ok: "", Err: errors.New("error")},
			expected: false,
		},
		{
			name:     "Empty result with nil error",
			result:   Result[string]{Ok: "", Err: nil},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.IsOk())
		})
	}
}

func TestResult_IsErrWithChecks(t *testing.T) {
	wrapped := Err[int](errors.Wrap(errSentinel, "load"))
	assert.True(t, wrapped.IsErr())
	assert.True(t, wrapped.IsErr(errSentinel))
	assert.False(t, wrapped.IsErr(errors.New("other")))
	assert.False(t, Ok(1).IsErr(errSentinel))
}

func TestResult_IsErrMatches(t *testing.T) {
	r := Err[string](errors.New("search failed: connection refused"))
	assert.True(t, r.IsErrMatches())
	assert.True(t, r.IsErrMatches("nope", "refused"))
	assert.False(t, r.IsErrMatches("timeout"))
	assert.False(t, Ok("x").IsErrMatches("x"))
}

func TestOk(t *testing.T) {
	result := Ok(42)
	assert.True(t, result.IsOk())
	assert.Equal(t, 42, result.Ok)
	assert.Nil(t, result.Err)
}

func TestErr(t *testing.T) {
	err := errors.New("test error")
	result := Err[string](err)
	assert.True(t, result.IsErr())
	assert.Equal(t, "", result.Ok)
	assert.Equal(t, err, result.Err)
}

func TestPartialAndUnwrap(t *testing.T) {
	r := Partial("placeholder", errSentinel)
	val, err := r.Unwrap()
	assert.Equal(t, "placeholder", val)
	assert.ErrorIs(t, err, errSentinel)
	assert.False(t, r.IsOk())
}
