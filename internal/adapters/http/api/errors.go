package api

import (
	"errors"
	"fmt"
)

// Sentinel kinds for API errors.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrLimitExceeded = errors.New("limit exceeded")
)

func badRequest(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrBadRequest, err)
}
