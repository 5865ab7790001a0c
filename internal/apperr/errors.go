// Package apperr holds the sentinel errors shared by the service, API and MCP layers.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrMalformedCanvas = errors.New("malformed canvas")
	ErrNoParent        = errors.New("no parent location for archive")
	ErrPartialWrite    = errors.New("archive written but canvas not updated")
	ErrNotCanvas       = errors.New("not a canvas file")
)
