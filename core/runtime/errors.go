package runtime

import "errors"

var (
	// ErrSessionClientDisconnected is returned by SessionClient.WriteMessage
	// when the client connection is gone. The dispatch loop treats it as a
	// session-removal trigger, never as a fatal error.
	ErrSessionClientDisconnected = errors.New("runtime: session client disconnected")

	// ErrRuntimeStopped is returned when a session operation is issued after
	// the runtime has begun stopping.
	ErrRuntimeStopped = errors.New("runtime: runtime is stopped")

	// ErrSessionClosed is returned by SessionHandle.Enqueue after the
	// session has been torn down.
	ErrSessionClosed = errors.New("runtime: session is closed")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("runtime: already started")

	// ErrNotStarted is returned when Stop is called before Start.
	ErrNotStarted = errors.New("runtime: not started")

	// ErrClientNil is returned when CreateSession is called without a client.
	ErrClientNil = errors.New("runtime: session client is nil")

	// ErrRunnerNil is returned when CreateSession is called without a runner.
	ErrRunnerNil = errors.New("runtime: script runner is nil")

	// ErrShutdownTimeout is returned when the dispatch loop fails to stop
	// within the configured shutdown timeout.
	ErrShutdownTimeout = errors.New("runtime: shutdown timeout exceeded")

	// ErrHealthcheckFailed is the base error for failed healthchecks.
	ErrHealthcheckFailed = errors.New("runtime: healthcheck failed")
)
