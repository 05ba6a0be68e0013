package domain

import "errors"

var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateEmail indicates an insert that would violate the unique
	// email constraint.
	ErrDuplicateEmail = errors.New("email already exists")
)
