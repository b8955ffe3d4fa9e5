package syncer

import "errors"

var (
	ErrStopped   = errors.New("sync coordinator stopped")
	ErrQueueFull = errors.New("sync queue full")
)
