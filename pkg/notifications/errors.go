package notifications

import (
	"errors"
	"fmt"
)

var (
	// ErrRecipientNotFound is returned when the notified user does not exist.
	ErrRecipientNotFound = errors.New("notifications: recipient not found")

	// ErrPersistence wraps any failure to write the durable record.
	ErrPersistence = errors.New("notifications: persistence failed")

	// ErrNotFound is returned when a notification does not exist or belongs to someone else.
	ErrNotFound = errors.New("notifications: notification not found")

	// ErrDispatch wraps real-time push failures. It is logged, never returned by the Notifier.
	ErrDispatch = errors.New("notifications: dispatch failed")

	// ErrInvalidNotification is returned when a notification misses a recipient, title or body.
	ErrInvalidNotification = errors.New("notifications: invalid notification")

	// ErrTemplateNotFound is returned when the catalog lacks a required template.
	ErrTemplateNotFound = errors.New("notifications: template not found")

	// ErrCatalogLoad wraps failures to read or parse a template catalog.
	ErrCatalogLoad = errors.New("notifications: failed to load template catalog")
)

func errInvalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidNotification, reason)
}

type recovered struct{ v any }

func (r recovered) Error() string { return fmt.Sprintf("panic: %v", r.v) }

func panicError(v any) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return recovered{v: v}
}
