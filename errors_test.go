package tempalert

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindsAreStableStrings(t *testing.T) {
	cases := map[string]error{
		"register_locked":   ErrRegisterLocked,
		"parameter_error":   ErrParameter,
		"invalid_range":     ErrInvalidRange,
		"device_init_error": ErrDeviceInit,
		"bus_error":         ErrBus,
	}
	for want, e := range cases {
		assert.Equal(t, want, e.Error())
	}
}

func TestError_Is(t *testing.T) {
	err := NewError("set_crit", ErrInvalidRange, "crit %.2f must exceed upper %.2f", 30.0, 32.5)
	wrapped := fmt.Errorf("setup: %w", err)

	assert.ErrorIs(t, wrapped, ErrInvalidRange)
	assert.NotErrorIs(t, wrapped, ErrRegisterLocked)
	assert.Equal(t, ErrInvalidRange, KindOf(wrapped))
	assert.Equal(t, "set_crit: crit 30.00 must exceed upper 32.50", err.Error())
}

func TestWrapBus(t *testing.T) {
	cause := errors.New("nack")
	err := WrapBus("read_register", cause)

	assert.ErrorIs(t, err, ErrBus)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "read_register: bus transfer failed: nack", err.Error())
	assert.Nil(t, KindOf(cause))
}
