// Package ratelimit gates chat message sends per user with a sliding window.
package ratelimit

import (
	"context"
	"time"
)

type Config struct {
	Window time.Duration
	Max    int
}

// Limiter admits or rejects one send attempt for a user. Rejected attempts
// never consume a slot.
type Limiter interface {
	Admit(ctx context.Context, userID string) (bool, error)
	Reset(ctx context.Context) error
}
