package forwardmsg

import "errors"

var (
	// ErrNilMessage is returned when a nil message is passed to a function
	// that requires one.
	ErrNilMessage = errors.New("forwardmsg: nil message")

	// ErrHashFailed is returned when the message could not be serialized
	// for hashing.
	ErrHashFailed = errors.New("forwardmsg: failed to compute message hash")
)
