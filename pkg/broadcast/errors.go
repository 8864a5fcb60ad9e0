package broadcast

import "errors"

var (
	// ErrClosed is returned when publishing through a closed broadcaster or topic set.
	ErrClosed = errors.New("broadcast: closed")

	// ErrRelayPublish wraps failures to publish through the Redis relay.
	ErrRelayPublish = errors.New("broadcast: relay publish failed")

	// ErrRelayDecode is logged when a relayed payload cannot be decoded.
	ErrRelayDecode = errors.New("broadcast: relay payload decode failed")
)
