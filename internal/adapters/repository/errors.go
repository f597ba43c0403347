package repository

import "errors"

// Sentinel kinds for ranking errors.
var (
	ErrNotFound     = errors.New("customer not found")
	ErrInvalidLimit = errors.New("invalid ranking limit")
)
