package environment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/tempalert"
)

// MockI2CBus is a mock implementation of tempalert.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockI2CBus) expectRead(reg byte, data []byte) {
	m.On("WriteToAddr", mock.Anything, byte(MCP9808DefaultAddress), []byte{reg}).Return(nil).Once()
	m.On("ReadFromAddr", mock.Anything, byte(MCP9808DefaultAddress), mock.Anything).Return(data, nil).Once()
}

func TestMCP9808_GetTemperature(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected float64
	}{
		{"room", []byte{0x01, 0x90}, 25},
		{"flags are masked", []byte{0xE1, 0x94}, 25.25},
		{"fraction", []byte{0x00, 0x01}, 0.0625},
		{"negative", []byte{0x1F, 0x60}, -10},
		{"minimum", []byte{0x1D, 0x80}, -40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := new(MockI2CBus)
			bus.expectRead(regAmbient, tt.data)
			s := NewMCP9808(bus)

			temp, err := s.GetTemperature(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, temp)
			bus.AssertExpectations(t)
		})
	}
}

func TestMCP9808_GetAlertFlags(t *testing.T) {
	bus := new(MockI2CBus)
	bus.expectRead(regAmbient, []byte{0xC2, 0x40})
	s := NewMCP9808(bus)

	flags, err := s.GetAlertFlags(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AlertFlags{AboveCrit: true, AboveUpper: true}, flags)
}

func TestMCP9808_RetriesBusyBus(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, byte(MCP9808DefaultAddress), []byte{regAmbient}).Return(tempalert.ErrBusBusy).Once()
	bus.On("Release", mock.Anything).Return(nil).Once()
	bus.expectRead(regAmbient, []byte{0x01, 0x90})
	s := NewMCP9808(bus)

	temp, err := s.GetTemperature(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25.0, temp)
	bus.AssertExpectations(t)
}

func TestMCP9808_RetryLimit(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, mock.Anything, mock.Anything).Return(tempalert.ErrBusBusy)
	bus.On("Release", mock.Anything).Return(nil)
	s := NewMCP9808(bus, WithRetryLimit(2))

	_, err := s.GetTemperature(context.Background())
	assert.ErrorIs(t, err, tempalert.ErrBus)
	assert.ErrorIs(t, err, tempalert.ErrBusBusy)
	bus.AssertNumberOfCalls(t, "WriteToAddr", 2)
	bus.AssertNumberOfCalls(t, "Release", 2)
}

func TestMCP9808_BusError(t *testing.T) {
	bus := new(MockI2CBus)
	bus.On("WriteToAddr", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("nack"))
	s := NewMCP9808(bus)

	_, err := s.GetTemperature(context.Background())
	assert.ErrorIs(t, err, tempalert.ErrBus)
	assert.ErrorContains(t, err, "nack")
	bus.AssertNotCalled(t, "Release", mock.Anything)
}

func TestMCP9808_Init(t *testing.T) {
	sim := NewSimulatedMCP9808()
	s := NewMCP9808(sim)
	assert.NoError(t, s.Init(context.Background()))
}

func TestMCP9808_InitGivesUp(t *testing.T) {
	sim := NewSimulatedMCP9808(WithSimAddress(0x18))
	s := NewMCP9808(sim, WithInitAttempts(3), WithInitBackoff(time.Millisecond, 2*time.Millisecond))

	err := s.Init(context.Background())
	assert.ErrorIs(t, err, tempalert.ErrDeviceInit)
	assert.ErrorContains(t, err, "after 3 attempts")
}

func TestMCP9808_InitWrongDevice(t *testing.T) {
	bus := new(MockI2CBus)
	bus.expectRead(regManufacturer, []byte{0x00, 0x54})
	bus.expectRead(regDeviceID, []byte{0x75, 0x00})
	s := NewMCP9808(bus, WithInitAttempts(1))

	err := s.Init(context.Background())
	assert.ErrorIs(t, err, tempalert.ErrDeviceInit)
	assert.ErrorContains(t, err, "unexpected device id")
}

func TestMCP9808_InitCancelled(t *testing.T) {
	sim := NewSimulatedMCP9808(WithSimAddress(0x18))
	s := NewMCP9808(sim, WithInitAttempts(10), WithInitBackoff(time.Hour, time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Init(ctx)
	assert.ErrorIs(t, err, tempalert.ErrDeviceInit)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddressFromPins(t *testing.T) {
	assert.Equal(t, byte(0x18), AddressFromPins(false, false, false))
	assert.Equal(t, byte(0x1F), AddressFromPins(true, true, true))
	assert.Equal(t, byte(0x1A), AddressFromPins(false, true, false))

	assert.NoError(t, ValidateAddress(0x1C))
	assert.ErrorIs(t, ValidateAddress(0x20), tempalert.ErrParameter)
	assert.ErrorIs(t, ValidateAddress(0x17), tempalert.ErrParameter)
}
