package realtime

import "errors"

var (
	// ErrUnauthenticated is returned when a handshake carries no usable identity.
	ErrUnauthenticated = errors.New("realtime: unauthenticated")

	// ErrServerClosed is returned for handshakes after Close.
	ErrServerClosed = errors.New("realtime: server closed")
)
