package ratelimit

import (
	"context"
	"time"
)

// WindowStore is the shared backend a Redis deployment provides.
type WindowStore interface {
	AdmitSlidingWindow(ctx context.Context, key string, window time.Duration, max int) (bool, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// Shared keeps the windows in an external store so the budget survives restarts.
type Shared struct {
	store  WindowStore
	cfg    Config
	prefix string
}

func NewShared(store WindowStore, cfg Config, prefix string) *Shared {
	return &Shared{store: store, cfg: cfg, prefix: prefix}
}

func (l *Shared) Admit(ctx context.Context, userID string) (bool, error) {
	return l.store.AdmitSlidingWindow(ctx, l.prefix+userID, l.cfg.Window, l.cfg.Max)
}

func (l *Shared) Reset(ctx context.Context) error {
	return l.store.DeletePrefix(ctx, l.prefix)
}
