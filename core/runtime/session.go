package runtime

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/appkit/core/forwardmsg"
)

// SessionClient is the interface for delivering messages to a session's
// client. The concrete implementation lives at the transport layer (see
// core/sessiontransport for a websocket client).
type SessionClient interface {
	// WriteMessage delivers one message to the client. It returns
	// ErrSessionClientDisconnected if the client connection is gone;
	// the dispatch loop treats that as a session-removal trigger.
	WriteMessage(msg *forwardmsg.Message) error
}

// Event is an opaque incoming event forwarded to a session's script runner,
// e.g. a widget interaction or a rerun request from the client.
type Event struct {
	Kind string
	Data []byte
}

// ScriptRunner produces a session's output messages. The runtime starts
// Run on a dedicated goroutine when the session is created; the context is
// cancelled when the session is torn down, and the runner is expected to
// notice and stop enqueuing.
type ScriptRunner interface {
	// Run is the producer goroutine body. It blocks for the session's
	// lifetime, enqueuing messages through the handle.
	Run(ctx context.Context, session *SessionHandle)

	// HandleEvent delivers one client event to the runner. It is called on
	// the dispatch loop goroutine and must not block.
	HandleEvent(event Event)
}

// SessionHandle is the producer-side handle for one session. The session's
// script runner enqueues output messages through it; the dispatch loop
// drains them in FIFO order. Enqueue is safe to call concurrently with the
// loop's draining.
type SessionHandle struct {
	id     uuid.UUID
	notify func()

	mu      sync.Mutex
	pending []*forwardmsg.Message
	closed  bool
}

func newSessionHandle(id uuid.UUID, notify func()) *SessionHandle {
	return &SessionHandle{id: id, notify: notify}
}

// ID returns the session's unique identifier.
func (h *SessionHandle) ID() uuid.UUID {
	return h.id
}

// Enqueue appends a message to the session's pending queue and wakes the
// dispatch loop. It returns ErrSessionClosed once the session has been torn
// down and forwardmsg.ErrNilMessage for a nil message.
func (h *SessionHandle) Enqueue(msg *forwardmsg.Message) error {
	if msg == nil {
		return forwardmsg.ErrNilMessage
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrSessionClosed
	}
	h.pending = append(h.pending, msg)
	h.mu.Unlock()

	h.notify()
	return nil
}

// Len returns the number of messages waiting to be flushed.
func (h *SessionHandle) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// flush removes and returns all pending messages in enqueue order.
func (h *SessionHandle) flush() []*forwardmsg.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := h.pending
	h.pending = nil
	return msgs
}

// close marks the handle closed and discards anything still pending.
// Subsequent Enqueue calls fail with ErrSessionClosed.
func (h *SessionHandle) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	h.pending = nil
}

// sessionInfo is the dispatch loop's bookkeeping for one registered session.
// It is owned by the loop goroutine; nothing outside the loop touches it
// after registration.
type sessionInfo struct {
	id     uuid.UUID
	handle *SessionHandle
	client SessionClient
	runner ScriptRunner
	cancel context.CancelFunc

	// generation counts the session's successfully completed script runs.
	// It is the unit in which cache references age.
	generation uint64
}

// teardown closes the producer handle and cancels the runner's context. The
// handle closes first so that a runner observing cancellation can no longer
// enqueue.
func (s *sessionInfo) teardown() {
	s.handle.close()
	s.cancel()
}
