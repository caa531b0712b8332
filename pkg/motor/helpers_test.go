package motor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlie0129/blind/pkg/calibration"
	"github.com/charlie0129/blind/pkg/gpio"
)

type fakeStore struct {
	mu    sync.Mutex
	rec   calibration.Record
	ok    bool
	saves int
	err   error
}

func (s *fakeStore) Load() (calibration.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok || !s.rec.Valid() {
		return calibration.Record{}, false
	}
	return s.rec, true
}

func (s *fakeStore) Save(deployed, safetyBuffer int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.err != nil {
		return s.err
	}
	s.rec = calibration.Record{Magic: calibration.Magic, Deployed: deployed, SafetyBuffer: safetyBuffer}
	s.ok = true
	return nil
}

func (s *fakeStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *fakeStore) Record() calibration.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.PulseWidth = 0
	opts.DirectionSettle = 0
	opts.SettleDelay = 0
	opts.PollInterval = 5 * time.Millisecond
	return opts
}

// newTestController returns a controller over an enabled mock mechanism.
func newTestController(t *testing.T, travel, start int64, store *fakeStore) (*Controller, *gpio.Mock) {
	t.Helper()

	mock := gpio.NewMock(gpio.MockConfig{Travel: travel, Start: start})
	require.NoError(t, mock.Enable(true))

	c, err := New(mock, store, testOptions())
	require.NoError(t, err)
	return c, mock
}

func storedRange(deployed, buffer int64) *fakeStore {
	return &fakeStore{
		rec: calibration.Record{Magic: calibration.Magic, Deployed: deployed, SafetyBuffer: buffer},
		ok:  true,
	}
}

// faultyPins fails the enable or direction writes of an otherwise working
// mechanism.
type faultyPins struct {
	*gpio.Mock
	enableErr error
	dirErr    error
}

func (p *faultyPins) Enable(on bool) error {
	if p.enableErr != nil {
		return p.enableErr
	}
	return p.Mock.Enable(on)
}

func (p *faultyPins) SetDirection(dir gpio.Direction) error {
	if p.dirErr != nil {
		return p.dirErr
	}
	return p.Mock.SetDirection(dir)
}

func newFaultyController(t *testing.T, pins *faultyPins, store *fakeStore) *Controller {
	t.Helper()

	require.NoError(t, pins.Mock.Enable(true))
	c, err := New(pins, store, testOptions())
	require.NoError(t, err)
	return c
}
