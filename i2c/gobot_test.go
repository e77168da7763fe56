package i2c

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	gobi2c "gobot.io/x/gobot/v2/drivers/i2c"
)

type MockAdaptor struct {
	gobi2c.Connector
	mock.Mock
}

func (m *MockAdaptor) Connect() error {
	return m.Called().Error(0)
}

func (m *MockAdaptor) Finalize() error {
	return m.Called().Error(0)
}

func (m *MockAdaptor) DefaultI2cBus() int {
	return m.Called().Int(0)
}

func (m *MockAdaptor) GetI2cConnection(address int, busNr int) (gobi2c.Connection, error) {
	args := m.Called(address, busNr)
	conn, _ := args.Get(0).(gobi2c.Connection)
	return conn, args.Error(1)
}

// fakeConn records writes and serves reads from a fixed payload.
type fakeConn struct {
	gobi2c.Connection
	written bytes.Buffer
	payload []byte
	closed  bool
}

func (c *fakeConn) Read(b []byte) (int, error) {
	return copy(b, c.payload), nil
}

func (c *fakeConn) Write(b []byte) (int, error) {
	return c.written.Write(b)
}

func (c *fakeConn) Close() error {
	c.closed = true
	return nil
}

func TestGobotBus(t *testing.T) {
	conn := &fakeConn{payload: []byte{0x01, 0x90}}
	adaptor := new(MockAdaptor)
	adaptor.On("Connect").Return(nil).Once()
	adaptor.On("DefaultI2cBus").Return(1).Once()
	adaptor.On("GetI2cConnection", 0x1F, 1).Return(conn, nil).Once()
	adaptor.On("Finalize").Return(nil).Once()

	bus, err := NewGobotBus(adaptor, -1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, bus.WriteToAddr(ctx, 0x1F, []byte{0x05}))
	buf := make([]byte, 2)
	require.NoError(t, bus.ReadFromAddr(ctx, 0x1F, buf))
	assert.Equal(t, []byte{0x01, 0x90}, buf)
	assert.Equal(t, []byte{0x05}, conn.written.Bytes())

	err = bus.ReadFromAddr(ctx, 0x1F, make([]byte, 3))
	assert.ErrorContains(t, err, "short read")

	require.NoError(t, bus.Close())
	assert.True(t, conn.closed)
	adaptor.AssertExpectations(t)
}

func TestGobotBus_ConnectionError(t *testing.T) {
	adaptor := new(MockAdaptor)
	adaptor.On("Connect").Return(nil).Once()
	adaptor.On("GetI2cConnection", 0x18, 2).Return(nil, errors.New("no such bus")).Once()

	bus, err := NewGobotBus(adaptor, 2)
	require.NoError(t, err)
	err = bus.WriteToAddr(context.Background(), 0x18, []byte{0x01})
	assert.ErrorContains(t, err, "no such bus")
}

func TestGobotBus_ConnectFails(t *testing.T) {
	adaptor := new(MockAdaptor)
	adaptor.On("Connect").Return(errors.New("not a raspberry pi")).Once()

	_, err := NewGobotBus(adaptor, 1)
	assert.ErrorContains(t, err, "not a raspberry pi")
}
