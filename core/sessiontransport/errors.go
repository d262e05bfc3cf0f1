package sessiontransport

import "errors"

var (
	// ErrConnNil is returned when a nil websocket connection is supplied.
	ErrConnNil = errors.New("sessiontransport: connection is nil")

	// ErrCompressionInit is returned when the zstd codec fails to initialize.
	ErrCompressionInit = errors.New("sessiontransport: compression init failed")

	// ErrMalformedEvent is returned when an incoming event frame cannot be
	// decoded.
	ErrMalformedEvent = errors.New("sessiontransport: malformed event frame")

	// ErrMalformedFrame is returned when an outbound frame cannot be
	// unpacked.
	ErrMalformedFrame = errors.New("sessiontransport: malformed message frame")
)
