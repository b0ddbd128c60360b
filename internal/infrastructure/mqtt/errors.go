package mqtt

import "errors"

var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrInvalidQoS       = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic     = errors.New("mqtt: topic cannot be empty")

	// ErrRetriesExhausted is returned by Adapter.Run once the reconnect
	// budget is spent. The adapter does not recover from it.
	ErrRetriesExhausted = errors.New("mqtt: reconnect attempts exhausted")

	// ErrAdapterStopped is returned by Run on an adapter that already
	// gave up.
	ErrAdapterStopped = errors.New("mqtt: adapter stopped")
)
