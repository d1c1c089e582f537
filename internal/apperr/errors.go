// Package apperr holds sentinel errors shared across packages.
package apperr

import "errors"

var (
	ErrNotFound  = errors.New("not found")
	ErrNotLoaded = errors.New("catalog not loaded")
)
