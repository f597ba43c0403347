package service

import "errors"

// Sentinel kinds for service errors.
var (
	// ErrNotReady is returned by queries before the first successful run.
	ErrNotReady = errors.New("no completed run")
	// ErrNoSource is returned by Run when no transaction source is set.
	ErrNoSource = errors.New("no transaction source configured")
)
