package forwardmsg

import (
	"encoding/hex"
	"errors"

	"github.com/zeebo/blake3"
)

// EnsureHash assigns a content hash to the message if it doesn't already
// have one, and returns it. The digest is BLAKE3-256 over the message's
// canonical CBOR encoding with the hash field cleared, so the result is
// independent of whether the field was populated before the call.
//
// EnsureHash is idempotent: a second call returns the stored hash without
// recomputation and never alters payload bytes.
func EnsureHash(msg *Message) (string, error) {
	if msg == nil {
		return "", ErrNilMessage
	}
	if msg.Hash != "" {
		return msg.Hash, nil
	}

	clone := *msg
	clone.Hash = ""

	data, err := Marshal(&clone)
	if err != nil {
		return "", errors.Join(ErrHashFailed, err)
	}

	sum := blake3.Sum256(data)
	msg.Hash = hex.EncodeToString(sum[:])
	return msg.Hash, nil
}
