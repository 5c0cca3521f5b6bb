package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")

	// ErrBusy is returned when a scan or export is already in flight.
	ErrBusy = errors.New("busy")
	// ErrInvalidMessage marks a plugin envelope that is not valid JSON or has no type.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrNotRenderable is returned when the host cannot rasterise a node.
	ErrNotRenderable = errors.New("node is not renderable")
	// ErrUnknownProperty is returned when a component property does not exist.
	ErrUnknownProperty = errors.New("unknown component property")
	// ErrStopped is returned when a message arrives after the inbox shut down.
	ErrStopped = errors.New("inbox stopped")
)
