package handoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/flock"

	"github.com/wildeconsulting/kwsub/internal/debug"
)

// DefaultLockTimeout bounds how long an invocation waits for another hook
// process to release the handoff lock.
const DefaultLockTimeout = time.Second

// ErrLockTimeout is returned when the lock could not be acquired in time.
var ErrLockTimeout = errors.New("timed out waiting for handoff lock")

// WithLock runs fn while holding an exclusive lock on the sibling lock file.
// Acquisition is retried until timeout elapses (DefaultLockTimeout when
// timeout <= 0). The lock is released on every return path, including a
// panic in fn.
func (s *Store) WithLock(ctx context.Context, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}

	lock := flock.New(s.LockPath())
	if err := acquire(ctx, lock, timeout); err != nil {
		return err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			debug.Logf("handoff: releasing %s: %v", s.LockPath(), err)
		}
	}()

	debug.Logf("handoff: acquired %s", s.LockPath())
	return fn()
}

// acquire polls TryLock with exponential backoff until timeout.
func acquire(ctx context.Context, lock *flock.Flock, timeout time.Duration) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 10 * time.Millisecond
	policy.MaxInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = timeout

	attempts := 0
	err := backoff.Retry(func() error {
		attempts++
		locked, err := lock.TryLock()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("locking %s: %w", lock.Path(), err))
		}
		if !locked {
			return ErrLockTimeout
		}
		return nil
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			return fmt.Errorf("%w: %s held by another process after %s (%d attempts)",
				ErrLockTimeout, lock.Path(), timeout, attempts)
		}
		return err
	}
	return nil
}
