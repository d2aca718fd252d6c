package resilience

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
)

// Bound runs fn under a deadline of limit and stops waiting for it once the
// deadline passes, returning an error that wraps apperrors.ErrTimeout. fn is
// left to notice its cancelled context on its own. A cancelled parent
// returns the parent's error; a non-positive limit calls fn directly.
func Bound(ctx context.Context, limit time.Duration, fn func(context.Context) error) error {
	if limit <= 0 {
		return fn(ctx)
	}
	bounded, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(bounded) }()
	select {
	case err := <-done:
		return err
	case <-bounded.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w after %v", apperrors.ErrTimeout, limit)
	}
}
