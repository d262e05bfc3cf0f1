package runtime

import "log/slog"

// State identifies the runtime's position in its lifecycle state machine.
// Exactly one state is active at a time; transitions happen only on the
// dispatch loop's goroutine, except for the externally-requested move to
// StateStopping.
type State string

const (
	// StateInitial is the state before Start is called.
	StateInitial State = "initial"

	// StateWaitingForFirstSession means the loop is running but no session
	// has ever been registered.
	StateWaitingForFirstSession State = "waiting_for_first_session"

	// StateOneOrMoreSessionsConnected means at least one session is
	// registered and the loop is actively flushing queues.
	StateOneOrMoreSessionsConnected State = "one_or_more_sessions_connected"

	// StateNoSessionsConnected means all previously registered sessions
	// have been removed; the loop is idle-waiting for the next one.
	StateNoSessionsConnected State = "no_sessions_connected"

	// StateStopping means a stop was requested and the loop is draining
	// and tearing down sessions.
	StateStopping State = "stopping"

	// StateStopped is terminal: the loop has exited and every session has
	// been torn down.
	StateStopped State = "stopped"
)

// String implements fmt.Stringer.
func (s State) String() string { return string(s) }

func (r *Runtime) getState() State {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

func (r *Runtime) setState(next State) {
	r.stateMu.Lock()
	prev := r.state
	r.state = next
	r.stateMu.Unlock()

	if prev != next {
		r.logger.Debug("runtime state changed",
			slog.String("from", prev.String()),
			slog.String("to", next.String()))
	}
}

// State returns the runtime's current lifecycle state. Safe to call from
// any goroutine.
func (r *Runtime) State() State {
	return r.getState()
}
