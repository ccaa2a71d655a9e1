// Package common holds the error values shared between storage backends and
// the services that consume them.
package common

import "errors"

var (
	// ErrNotFound is returned by stores when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned by stores on unique-key conflicts.
	ErrAlreadyExists = errors.New("already exists")
)
