package realtime

import (
	"sync"
	"time"
)

// MinKeepaliveTick is the shortest watchdog interval.
const MinKeepaliveTick = time.Second

// watchdog monitors ka frames for one connection generation.
type watchdog struct {
	timeout  time.Duration
	interval time.Duration

	lastSeen  func() time.Time
	onTimeout func()

	stopCh   chan struct{}
	stopOnce sync.Once
}

// keepaliveInterval returns max(timeout/4, minTick).
func keepaliveInterval(timeout, minTick time.Duration) time.Duration {
	if minTick <= 0 {
		minTick = MinKeepaliveTick
	}
	interval := timeout / 4
	if interval < minTick {
		interval = minTick
	}
	return interval
}

func newWatchdog(timeout, minTick time.Duration, lastSeen func() time.Time, onTimeout func()) *watchdog {
	return &watchdog{
		timeout:   timeout,
		interval:  keepaliveInterval(timeout, minTick),
		lastSeen:  lastSeen,
		onTimeout: onTimeout,
		stopCh:    make(chan struct{}),
	}
}

func (w *watchdog) start() {
	go w.loop()
}

func (w *watchdog) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *watchdog) loop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case now := <-ticker.C:
			if now.Sub(w.lastSeen()) > w.timeout {
				w.onTimeout()
				return
			}
		}
	}
}
