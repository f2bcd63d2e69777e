package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindow keeps the admitted timestamps of each user in memory.
// Windows are pruned lazily when their user is checked.
type SlidingWindow struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	windows map[string]*window
}

type window struct {
	mu   sync.Mutex
	hits []time.Time
}

type Option func(*SlidingWindow)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *SlidingWindow) { l.now = now }
}

func NewSlidingWindow(cfg Config, opts ...Option) *SlidingWindow {
	l := &SlidingWindow{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *SlidingWindow) Admit(_ context.Context, userID string) (bool, error) {
	w := l.window(userID)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.Window)
	kept := w.hits[:0]
	for _, hit := range w.hits {
		if !hit.Before(cutoff) {
			kept = append(kept, hit)
		}
	}
	w.hits = kept

	if len(w.hits) >= l.cfg.Max {
		return false, nil
	}
	w.hits = append(w.hits, now)
	return true, nil
}

// window returns the per-user window, creating it on first use. Only map
// access happens under the limiter-wide lock.
func (l *SlidingWindow) window(userID string) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[userID]
	if !ok {
		w = &window{}
		l.windows[userID] = w
	}
	return w
}

func (l *SlidingWindow) Reset(context.Context) error {
	l.mu.Lock()
	l.windows = make(map[string]*window)
	l.mu.Unlock()
	return nil
}
