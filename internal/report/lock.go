package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const lockRetryWait = 25 * time.Millisecond

// errLockHeld is returned by tryLock while another holder owns the lock.
var errLockHeld = errors.New("lock held")

// withLock runs fn while holding an exclusive lock on lockPath, polling
// until ctx ends.
func withLock(ctx context.Context, lockPath string, dirPerm os.FileMode, fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(lockPath), dirPerm); err != nil {
		return fmt.Errorf("%w: create lock dir: %v", ErrLockUnavailable, err)
	}

	ticker := time.NewTicker(lockRetryWait)
	defer ticker.Stop()
	for {
		unlock, err := tryLock(lockPath)
		switch {
		case err == nil:
			defer unlock()
			return fn()
		case !errors.Is(err, errLockHeld):
			return fmt.Errorf("%w: %s: %v", ErrLockUnavailable, lockPath, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrLockTimeout, lockPath, ctx.Err())
		case <-ticker.C:
		}
	}
}
