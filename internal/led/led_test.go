package led

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/env-sensor/internal/gpio"
)

func TestIndicator(t *testing.T) {
	out := gpio.NewFakeOutput()
	i := New(out)

	require.NoError(t, i.On())
	assert.True(t, out.On)

	require.NoError(t, i.Toggle())
	assert.False(t, out.On)

	require.NoError(t, i.Toggle())
	require.NoError(t, i.Off())
	assert.False(t, out.On)
	assert.Equal(t, []bool{true, false}, out.Sets)
}

func TestIndicatorReportsFailure(t *testing.T) {
	out := gpio.NewFakeOutput()
	cause := errors.New("line busy")
	out.Err = cause
	i := New(out)

	assert.ErrorIs(t, i.On(), cause)
	assert.ErrorIs(t, i.Off(), cause)
	assert.ErrorIs(t, i.Toggle(), cause)
}
