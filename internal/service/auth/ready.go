package auth

import (
	"context"
	"time"
)

// Readiness reports whether credentials are available.
type Readiness interface {
	Ready() bool
}

// WaitReady polls r every interval until it reports ready or ctx ends.
func WaitReady(ctx context.Context, r Readiness, interval time.Duration) error {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if r.Ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Static is a fixed token that is always ready. Used for local backends and tests.
type Static string

// Ready implements Readiness.
func (s Static) Ready() bool { return s != "" }

// Token returns the fixed token.
func (s Static) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNotReady
	}
	return string(s), nil
}
