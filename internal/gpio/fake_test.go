package gpio

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakePinRead(t *testing.T) {
	p := NewFakePin(false)

	pressed, err := p.Read()
	require.NoError(t, err)
	assert.False(t, pressed)

	p.SetPressed(true)
	pressed, err = p.Read()
	require.NoError(t, err)
	assert.True(t, pressed)
	assert.Equal(t, 2, p.Reads())
}

func TestFakePinError(t *testing.T) {
	p := NewFakePin(true)
	p.SetReadError(errors.New("simulated error"))

	_, err := p.Read()
	assert.EqualError(t, err, "simulated error")

	p.SetReadError(nil)
	pressed, err := p.Read()
	require.NoError(t, err)
	assert.True(t, pressed)
}

func TestFakeOutput(t *testing.T) {
	o := NewFakeOutput()

	require.NoError(t, o.Toggle())
	assert.True(t, o.On)
	require.NoError(t, o.Toggle())
	assert.False(t, o.On)
	require.NoError(t, o.Set(true))
	assert.Equal(t, []bool{true}, o.Sets)
	assert.Equal(t, 2, o.Toggles)

	o.Err = errors.New("line busy")
	assert.Error(t, o.Set(false))
	assert.Error(t, o.Toggle())
	assert.True(t, o.On, "failed actuation leaves the level unchanged")
}

func TestUnavailable(t *testing.T) {
	var u Unavailable
	_, err := u.Read()
	assert.ErrorIs(t, err, ErrNotReady)
	assert.ErrorIs(t, u.Set(true), ErrNotReady)
	assert.ErrorIs(t, u.Toggle(), ErrNotReady)

	cause := errors.Join(ErrNotReady, errors.New("no such chip"))
	u = Unavailable{Err: cause}
	assert.Equal(t, cause, u.Set(false))
}
