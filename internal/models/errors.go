package models

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a compare-and-set transition lost a race.
	ErrConflict = errors.New("state changed concurrently")
)
