package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertCode(t *testing.T, err error, code int) {
	t.Helper()
	var se *Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, code, se.Code, se.Msg)
}

func ptr[T any](v T) *T { return &v }
