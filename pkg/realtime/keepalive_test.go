package realtime

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeepaliveInterval(t *testing.T) {
	assert.Equal(t, 75*time.Second, keepaliveInterval(300*time.Second, 0))
	assert.Equal(t, 7500*time.Millisecond, keepaliveInterval(30*time.Second, 0))
	assert.Equal(t, time.Second, keepaliveInterval(2*time.Second, 0), "minimum tick")
	assert.Equal(t, 5*time.Millisecond, keepaliveInterval(8*time.Millisecond, 5*time.Millisecond))
}

func TestWatchdogFiresOnce(t *testing.T) {
	var fired atomic.Int32
	start := time.Now()
	w := newWatchdog(30*time.Millisecond, 5*time.Millisecond,
		func() time.Time { return start },
		func() { fired.Add(1) })
	w.start()
	defer w.stop()

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestWatchdogStop(t *testing.T) {
	var fired atomic.Bool
	w := newWatchdog(20*time.Millisecond, 5*time.Millisecond,
		func() time.Time { return time.Time{} },
		func() { fired.Store(true) })
	w.start()
	w.stop()
	w.stop()

	time.Sleep(40 * time.Millisecond)
	assert.False(t, fired.Load())
}
