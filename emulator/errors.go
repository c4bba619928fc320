package emulator

import "errors"

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrDuplicateID    = errors.New("duplicate record id")
	ErrSyncFailed     = errors.New("sync failed")
	ErrClosed         = errors.New("host is closed")
	ErrInvalidFilter  = errors.New("invalid filter")
	ErrAccessDenied   = errors.New("access denied")
)
