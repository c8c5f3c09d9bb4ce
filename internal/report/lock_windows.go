//go:build windows

package report

import (
	"errors"
	"os"
	"time"
)

// staleLockAge is how old a marker may get before it is treated as left
// over by a crashed holder. Appends finish well within it.
const staleLockAge = 2 * time.Minute

// tryLock creates lockPath exclusively and removes it again on unlock.
// A marker older than staleLockAge is removed and the create retried once.
func tryLock(lockPath string) (func(), error) {
	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, defaultFilePerm)
		if err == nil {
			return func() {
				_ = f.Close()
				_ = os.Remove(lockPath)
			}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, err
		}
		if attempt > 0 || !removeStale(lockPath) {
			return nil, errLockHeld
		}
	}
}

func removeStale(lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	if time.Since(info.ModTime()) < staleLockAge {
		return false
	}
	err = os.Remove(lockPath)
	return err == nil || errors.Is(err, os.ErrNotExist)
}
