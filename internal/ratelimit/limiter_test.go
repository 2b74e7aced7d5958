package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestAllowRejectsCallFiftyOne(t *testing.T) {
	clock := newFakeClock()
	l := New(50, 60*time.Second, WithClock(clock.Now))

	var admitted []int
	var rejected []int
	for i := 1; i <= 61; i++ {
		if l.Allow() {
			admitted = append(admitted, i)
		} else {
			rejected = append(rejected, i)
		}
		clock.Advance(500 * time.Millisecond)
	}

	require.Len(t, admitted, 50)
	require.Len(t, rejected, 11)
	assert.Equal(t, 51, rejected[0])
	assert.Equal(t, 0, l.Remaining())
}

func TestCanMakeCallIsReadOnly(t *testing.T) {
	clock := newFakeClock()
	l := New(2, time.Minute, WithClock(clock.Now))

	for i := 0; i < 10; i++ {
		assert.True(t, l.CanMakeCall())
	}
	assert.Equal(t, 2, l.Remaining())

	l.RecordCall()
	l.RecordCall()
	assert.False(t, l.CanMakeCall())
}

func TestOldCallsLeaveTheWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(3, 10*time.Second, WithClock(clock.Now))

	l.RecordCall()
	clock.Advance(4 * time.Second)
	l.RecordCall()
	l.RecordCall()
	assert.False(t, l.CanMakeCall())

	// First call is exactly window old and no longer counts.
	clock.Advance(6 * time.Second)
	assert.True(t, l.CanMakeCall())
	assert.Equal(t, 1, l.Remaining())

	clock.Advance(4 * time.Second)
	assert.Equal(t, 3, l.Remaining())
}

func TestAllowIsAtomicUnderConcurrency(t *testing.T) {
	clock := newFakeClock()
	l := New(50, time.Minute, WithClock(clock.Now))

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow() {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(50), admitted.Load())
}
