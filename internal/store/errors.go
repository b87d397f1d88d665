package store

import "errors"

var (
	ErrListingNotFound   = errors.New("listing not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid transition")
)
