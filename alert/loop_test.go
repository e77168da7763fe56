package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSensor struct {
	mock.Mock
}

func (m *MockSensor) GetTemperature(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockSensor) ClearInterrupt(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type recordingReporter struct {
	mu      sync.Mutex
	temps   []float64
	changes int
}

func (r *recordingReporter) ReportTemperature(celsius float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.temps = append(r.temps, celsius)
}

func (r *recordingReporter) ReportAlertChange() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes++
}

func (r *recordingReporter) snapshot() ([]float64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.temps...), r.changes
}

func TestFlag(t *testing.T) {
	var f Flag
	assert.False(t, f.Take())

	f.Set()
	f.Set()
	assert.True(t, f.Pending())
	assert.True(t, f.Take())
	assert.False(t, f.Take(), "a flag is taken exactly once")
	assert.False(t, f.Pending())
}

func TestLoop_AcknowledgeWithoutFlagDoesNotTouchDevice(t *testing.T) {
	sensor := new(MockSensor)
	loop := NewLoop(sensor)

	handled, err := loop.Acknowledge(context.Background())
	assert.NoError(t, err)
	assert.False(t, handled)
	sensor.AssertNotCalled(t, "ClearInterrupt", mock.Anything)
}

func TestLoop_AcknowledgeClearsDeviceOnce(t *testing.T) {
	sensor := new(MockSensor)
	reporter := &recordingReporter{}
	loop := NewLoop(sensor, WithReporter(reporter))
	sensor.On("ClearInterrupt", mock.Anything).Return(nil).Once()

	loop.Notify()
	loop.Notify() // debounced duplicates collapse into the single slot
	handled, err := loop.Acknowledge(context.Background())
	require.NoError(t, err)
	assert.True(t, handled)

	handled, err = loop.Acknowledge(context.Background())
	require.NoError(t, err)
	assert.False(t, handled)

	_, changes := reporter.snapshot()
	assert.Equal(t, 1, changes)
	assert.Equal(t, uint64(1), loop.Handled())
	sensor.AssertExpectations(t)
}

func TestLoop_FailedClearKeepsEvent(t *testing.T) {
	sensor := new(MockSensor)
	loop := NewLoop(sensor, WithReporter(&recordingReporter{}))
	sensor.On("ClearInterrupt", mock.Anything).Return(errors.New("nack")).Once()
	sensor.On("ClearInterrupt", mock.Anything).Return(nil).Once()

	loop.Notify()
	handled, err := loop.Acknowledge(context.Background())
	assert.Error(t, err)
	assert.False(t, handled)
	assert.True(t, loop.Pending())

	handled, err = loop.Acknowledge(context.Background())
	assert.NoError(t, err)
	assert.True(t, handled)
	sensor.AssertExpectations(t)
}

func TestLoop_SampleReportsTemperature(t *testing.T) {
	sensor := new(MockSensor)
	reporter := &recordingReporter{}
	loop := NewLoop(sensor, WithReporter(reporter))
	sensor.On("GetTemperature", mock.Anything).Return(24.3125, nil).Once()
	sensor.On("GetTemperature", mock.Anything).Return(0.0, errors.New("bus down")).Once()

	require.NoError(t, loop.Sample(context.Background()))
	err := loop.Sample(context.Background())
	assert.ErrorContains(t, err, "could not read temperature: bus down")

	temps, _ := reporter.snapshot()
	assert.Equal(t, []float64{24.3125}, temps)
}

// The callback fires while an iteration is sampling: the event must be seen
// by the acknowledge step and cleared exactly once.
func TestLoop_EdgeDuringSample(t *testing.T) {
	sensor := new(MockSensor)
	reporter := &recordingReporter{}
	loop := NewLoop(sensor, WithReporter(reporter), WithInterval(5*time.Millisecond))

	fired := make(chan struct{})
	sensor.On("GetTemperature", mock.Anything).Return(33.0, nil).Once().Run(func(args mock.Arguments) {
		go func() {
			loop.Notify()
			close(fired)
		}()
		<-fired
	})
	sensor.On("GetTemperature", mock.Anything).Return(33.0, nil)
	sensor.On("ClearInterrupt", mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	assert.Eventually(t, func() bool {
		return loop.Handled() == 1
	}, time.Second, time.Millisecond)
	// give the loop a few more iterations to prove nothing is cleared twice
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.Equal(t, uint64(1), loop.Handled())
	_, changes := reporter.snapshot()
	assert.Equal(t, 1, changes)
	sensor.AssertNumberOfCalls(t, "ClearInterrupt", 1)
}

func TestLoop_NotifyFromManyGoroutines(t *testing.T) {
	sensor := new(MockSensor)
	loop := NewLoop(sensor, WithReporter(&recordingReporter{}))
	sensor.On("ClearInterrupt", mock.Anything).Return(nil)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop.Notify()
		}()
	}
	wg.Wait()

	handled, err := loop.Acknowledge(context.Background())
	require.NoError(t, err)
	assert.True(t, handled)
	assert.False(t, loop.Pending())
	sensor.AssertNumberOfCalls(t, "ClearInterrupt", 1)
}

func TestLoop_Step(t *testing.T) {
	sensor := new(MockSensor)
	reporter := &recordingReporter{}
	loop := NewLoop(sensor, WithReporter(reporter))
	sensor.On("ClearInterrupt", mock.Anything).Return(nil).Once()
	sensor.On("GetTemperature", mock.Anything).Return(33.25, nil).Once()
	sensor.On("GetTemperature", mock.Anything).Return(0.0, errors.New("nack")).Once()

	loop.Notify()
	require.NoError(t, loop.Step(context.Background()))
	err := loop.Step(context.Background())
	assert.ErrorContains(t, err, "could not read temperature")

	temps, changes := reporter.snapshot()
	assert.Equal(t, []float64{33.25}, temps)
	assert.Equal(t, 1, changes)
	sensor.AssertExpectations(t)
}
