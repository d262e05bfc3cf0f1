// Package forwardmsg defines the outbound message type produced by
// application sessions, its canonical binary encoding, and content-based
// message identity.
//
// A Message is an opaque, serializable unit of output with a Kind
// discriminator. Large messages are deduplicated by content hash: EnsureHash
// computes a BLAKE3 digest over the message's canonical CBOR bytes, and
// NewReference builds a minimal stand-in message carrying only that hash for
// delivery to clients that already hold the full payload.
//
// Messages are immutable once hashed. Which messages are worth caching is a
// policy decision made by the caller (see the runtime package's cacheable
// policy); this package only guarantees stable identity.
package forwardmsg
