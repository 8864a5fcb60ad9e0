package events

import "errors"

var (
	// ErrEmptyURL is returned when no NATS URL is configured.
	ErrEmptyURL = errors.New("events: empty nats url")

	// ErrNotReady is returned when the NATS server cannot be reached.
	ErrNotReady = errors.New("events: nats did not become ready")

	// ErrMalformedPayload is returned for events that cannot be decoded or
	// miss required fields.
	ErrMalformedPayload = errors.New("events: malformed payload")

	// ErrUnknownSubject is returned for subjects the subscriber does not route.
	ErrUnknownSubject = errors.New("events: unknown subject")

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("events: subscriber already started")
)
