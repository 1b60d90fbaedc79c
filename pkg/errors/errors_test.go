package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeData, "ignored"))
}

func TestWrap_PreservesInnerStack(t *testing.T) {
	inner := New(ErrorTypeConnection, "ping failed")
	outer := Wrap(inner, ErrorTypeConfig, "connect")

	require.NotEmpty(t, inner.Stack)
	assert.Equal(t, inner.Stack, outer.Stack)
	assert.True(t, stderrors.Is(outer, inner))
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"structured", New(ErrorTypeFormat, "unknown"), ErrorTypeFormat},
		{"wrapped plain", Wrap(stderrors.New("boom"), ErrorTypeQuery, "insert"), ErrorTypeQuery},
		{"plain", stderrors.New("boom"), ErrorTypeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TypeOf(tt.err))
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeSource, "unrecognized source %q", "nope.txt")
	assert.Equal(t, `source: unrecognized source "nope.txt"`, err.Error())
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeQuery, "insert failed").WithDetail("table", "pomodoro")
	assert.Equal(t, "pomodoro", err.Details["table"])
}
