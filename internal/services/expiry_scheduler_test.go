package services

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpirySchedulerFiresOnce(t *testing.T) {
	mock := clock.NewMock()
	s := NewExpiryScheduler(mock)

	var fired atomic.Int32
	require.True(t, s.Schedule("p1", 5*time.Second, func(id string) {
		assert.Equal(t, "p1", id)
		fired.Add(1)
	}))
	assert.True(t, s.Pending("p1"))

	mock.Add(4 * time.Second)
	assert.Equal(t, int32(0), fired.Load())

	mock.Add(time.Second)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, s.Pending("p1"))

	mock.Add(time.Minute)
	assert.Equal(t, int32(1), fired.Load())
}

func TestExpirySchedulerDoesNotRearm(t *testing.T) {
	mock := clock.NewMock()
	s := NewExpiryScheduler(mock)

	var first, second atomic.Int32
	require.True(t, s.Schedule("p1", 5*time.Second, func(string) { first.Add(1) }))
	assert.False(t, s.Schedule("p1", time.Second, func(string) { second.Add(1) }))

	mock.Add(5 * time.Second)
	require.Eventually(t, func() bool { return first.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), second.Load())
}

func TestExpirySchedulerCancel(t *testing.T) {
	mock := clock.NewMock()
	s := NewExpiryScheduler(mock)

	var fired atomic.Int32
	s.Schedule("p1", 5*time.Second, func(string) { fired.Add(1) })
	assert.True(t, s.Cancel("p1"))
	assert.False(t, s.Cancel("p1"))

	mock.Add(10 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestExpirySchedulerStop(t *testing.T) {
	mock := clock.NewMock()
	s := NewExpiryScheduler(mock)

	var fired atomic.Int32
	s.Schedule("p1", time.Second, func(string) { fired.Add(1) })
	s.Schedule("p2", 2*time.Second, func(string) { fired.Add(1) })
	s.Stop()

	assert.False(t, s.Pending("p1"))
	assert.False(t, s.Pending("p2"))
	mock.Add(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestExpirySchedulerRealClock(t *testing.T) {
	s := NewExpiryScheduler(nil)

	done := make(chan string, 1)
	s.Schedule("p1", 10*time.Millisecond, func(id string) { done <- id })

	select {
	case id := <-done:
		assert.Equal(t, "p1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}
