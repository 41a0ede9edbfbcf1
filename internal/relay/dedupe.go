package relay

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// dedupe remembers message hashes for a window. A zero window disables it.
type dedupe struct {
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	seenAt map[string]time.Time
}

func newDedupe(window time.Duration) *dedupe {
	return &dedupe{
		window: window,
		now:    time.Now,
		seenAt: make(map[string]time.Time),
	}
}

func dedupeKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:8])
}

// seen reports whether text was recorded within the window, and records it
// when it was not.
func (d *dedupe) seen(text string) bool {
	if d.window <= 0 {
		return false
	}

	key := dedupeKey(text)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if at, ok := d.seenAt[key]; ok && now.Sub(at) < d.window {
		return true
	}
	d.seenAt[key] = now
	return false
}

func (d *dedupe) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(d.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cleanup()
		}
	}
}

// cleanup drops entries older than the window.
func (d *dedupe) cleanup() {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, at := range d.seenAt {
		if now.Sub(at) >= d.window {
			delete(d.seenAt, key)
		}
	}
}

func (d *dedupe) size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seenAt)
}
