package report

import "errors"

var (
	ErrInvalidIdentifier = errors.New("invalid stats_id")
	ErrCorrupt           = errors.New("corrupt report record")
	ErrLockTimeout       = errors.New("report lock timeout")
	ErrLockUnavailable   = errors.New("report lock unavailable")
	ErrAtomicWrite       = errors.New("atomic write failed")
)
