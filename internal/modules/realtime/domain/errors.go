package domain

import "errors"

var (
	// ErrUnsupportedEventKind is returned by the transformer for kinds outside the closed set.
	ErrUnsupportedEventKind = errors.New("unsupported event kind")
	// ErrMalformedEvent indicates a broker payload that could not be decoded.
	ErrMalformedEvent = errors.New("malformed event payload")
	// ErrMalformedFrame indicates a client frame that is not valid JSON or misses required fields.
	ErrMalformedFrame = errors.New("malformed client frame")
	// ErrUnknownFrameType indicates a client frame whose type is not part of the protocol.
	ErrUnknownFrameType = errors.New("unknown frame type")
	// ErrUnknownChannel indicates a subscription request for a channel outside the static set.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrBrokerUnavailable marks a transient loss of connectivity to the pub/sub broker.
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrProducerFailure wraps a failed scheduled generation or publish.
	ErrProducerFailure = errors.New("producer failure")
	// ErrEventNotFound is returned by the latest-event cache when nothing is stored.
	ErrEventNotFound = errors.New("event not found")
)
