package delivery

import (
	"fmt"
	"sync"
	"time"
)

// SlidingWindow is a process-local, best-effort rate limiter: a trailing
// window of attempt timestamps checked before every outbound call. When the
// window is full the caller fails fast instead of blocking.
type SlidingWindow struct {
	mu      sync.Mutex
	enabled bool
	max     int
	window  time.Duration
	stamps  []time.Time
	now     func() time.Time
}

func NewSlidingWindow(enabled bool, max int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		enabled: enabled,
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Allow reports whether another attempt fits in the current window.
// Expired timestamps are pruned on every check.
func (l *SlidingWindow) Allow() error {
	if !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = kept

	if len(l.stamps) >= l.max {
		return fmt.Errorf("rate limit exceeded: %d requests per %.0f seconds", l.max, l.window.Seconds())
	}
	return nil
}

// Record registers one attempt. Called only for attempts that actually
// reached the network, whatever their outcome.
func (l *SlidingWindow) Record() {
	if !l.enabled {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.stamps = append(l.stamps, l.now())
}
