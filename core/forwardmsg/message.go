package forwardmsg

// Kind discriminates the payload carried by a Message.
type Kind string

const (
	// KindDelta is an ordinary output message carrying rendered payload
	// bytes. Delta messages are the only cacheable kind under the default
	// policy.
	KindDelta Kind = "delta"

	// KindControl is a small control message (initialization, session
	// status). Control messages are never cached.
	KindControl Kind = "control"

	// KindScriptFinished marks the end of one script run. Its Status field
	// reports whether the run completed successfully.
	KindScriptFinished Kind = "script_finished"

	// KindReference is a minimal stand-in for a previously delivered
	// message. It carries only the referenced content hash in Ref.
	KindReference Kind = "reference"
)

// RunStatus reports the outcome of a script run on a KindScriptFinished
// message.
type RunStatus string

const (
	RunFinishedSuccessfully RunStatus = "finished_successfully"
	RunFinishedWithError    RunStatus = "finished_with_error"
)

// Message is one unit of output produced by a session's script run.
//
// A Message is immutable once hashed: EnsureHash assigns Hash exactly once,
// and no field may change afterwards. The Hash field is excluded from the
// digest computation so that hashing is well-defined regardless of whether
// the field is already populated.
type Message struct {
	Kind    Kind      `cbor:"kind"`
	Name    string    `cbor:"name,omitempty"`
	Payload []byte    `cbor:"payload,omitempty"`
	Status  RunStatus `cbor:"status,omitempty"`
	Ref     string    `cbor:"ref,omitempty"`
	Hash    string    `cbor:"hash,omitempty"`
}

// messageOverhead approximates the fixed in-memory cost of a Message
// beyond its variable-length fields.
const messageOverhead = 64

// Size returns the message's approximate in-memory byte size. It feeds the
// cacheability policy and cache statistics; it is not a wire size.
func (m *Message) Size() int {
	if m == nil {
		return 0
	}
	return messageOverhead + len(m.Kind) + len(m.Name) + len(m.Payload) +
		len(m.Status) + len(m.Ref) + len(m.Hash)
}

// FinishedSuccessfully reports whether the message marks a successfully
// completed script run.
func (m *Message) FinishedSuccessfully() bool {
	return m.Kind == KindScriptFinished && m.Status == RunFinishedSuccessfully
}

// IsReference reports whether the message is a hash-only stand-in rather
// than a full payload.
func (m *Message) IsReference() bool {
	return m.Kind == KindReference
}

// NewReference creates a minimal message that points to a previously
// delivered message via its content hash.
func NewReference(hash string) *Message {
	return &Message{Kind: KindReference, Ref: hash}
}
