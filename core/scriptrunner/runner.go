package scriptrunner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/dmitrymomot/appkit/core/forwardmsg"
	"github.com/dmitrymomot/appkit/core/logger"
	"github.com/dmitrymomot/appkit/core/runtime"
)

// DefaultEventBuffer is the default capacity of a runner's incoming event
// queue.
const DefaultEventBuffer = 16

// Script is one application script. It is invoked once per run — on session
// start and again for every incoming event — and produces output by
// enqueuing messages on the session handle. Returning an error marks the run
// as finished with an error; the session stays alive for further events.
type Script func(ctx context.Context, session *runtime.SessionHandle, event runtime.Event) error

// FuncRunner adapts a Script function to the runtime.ScriptRunner interface.
// It owns the session's producer goroutine: each incoming event triggers one
// script run, and every run is terminated by a script-finished message so
// the dispatch loop can advance the session's generation and sweep the
// message cache.
type FuncRunner struct {
	script     Script
	events     chan runtime.Event
	initialRun bool
	logger     *slog.Logger

	// Observability metrics
	runsCompleted atomic.Int64
	runsFailed    atomic.Int64
	eventsDropped atomic.Int64
}

// FuncRunnerStats provides observability metrics for monitoring and testing.
type FuncRunnerStats struct {
	RunsCompleted int64 // Runs that finished successfully
	RunsFailed    int64 // Runs that returned an error or panicked
	EventsDropped int64 // Events discarded because the buffer was full
}

// Option configures a FuncRunner.
type Option func(*FuncRunner)

// WithLogger configures structured logging for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *FuncRunner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithInitialRun controls whether the script runs once immediately when the
// session starts, before any event arrives. Default is true.
func WithInitialRun(enabled bool) Option {
	return func(r *FuncRunner) {
		r.initialRun = enabled
	}
}

// WithEventBuffer sets the capacity of the incoming event queue. Events
// arriving while the buffer is full are dropped with a warning; the dispatch
// loop must never block on a runner.
func WithEventBuffer(size int) Option {
	return func(r *FuncRunner) {
		if size > 0 {
			r.events = make(chan runtime.Event, size)
		}
	}
}

// NewFuncRunner creates a runner for the given script.
func NewFuncRunner(script Script, opts ...Option) (*FuncRunner, error) {
	if script == nil {
		return nil, ErrScriptNil
	}

	r := &FuncRunner{
		script:     script,
		events:     make(chan runtime.Event, DefaultEventBuffer),
		initialRun: true,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Run implements runtime.ScriptRunner. It blocks until the session is torn
// down, executing one script run per triggering event.
func (r *FuncRunner) Run(ctx context.Context, session *runtime.SessionHandle) {
	if r.initialRun {
		r.execute(ctx, session, runtime.Event{Kind: "initial"})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.events:
			r.execute(ctx, session, ev)
		}
	}
}

// HandleEvent implements runtime.ScriptRunner. It is called on the dispatch
// loop goroutine and never blocks: events that don't fit the buffer are
// dropped.
func (r *FuncRunner) HandleEvent(event runtime.Event) {
	select {
	case r.events <- event:
	default:
		r.eventsDropped.Add(1)
		r.logger.Warn("event buffer full, dropping event",
			slog.String("kind", event.Kind))
	}
}

// Stats returns current runner metrics. Safe to call from any goroutine.
func (r *FuncRunner) Stats() FuncRunnerStats {
	return FuncRunnerStats{
		RunsCompleted: r.runsCompleted.Load(),
		RunsFailed:    r.runsFailed.Load(),
		EventsDropped: r.eventsDropped.Load(),
	}
}

// execute performs one script run and enqueues the terminating
// script-finished message.
func (r *FuncRunner) execute(ctx context.Context, session *runtime.SessionHandle, event runtime.Event) {
	status := forwardmsg.RunFinishedSuccessfully

	func() {
		// A panicking script fails its run but must not kill the producer
		// goroutine; the session stays responsive to further events.
		defer func() {
			if rec := recover(); rec != nil {
				status = forwardmsg.RunFinishedWithError
				r.logger.Error("script panicked",
					logger.SessionID(session.ID()),
					slog.Any("panic", rec))
			}
		}()

		if err := r.script(ctx, session, event); err != nil {
			status = forwardmsg.RunFinishedWithError
			r.logger.Error("script run failed",
				logger.SessionID(session.ID()),
				logger.Error(err))
		}
	}()

	if status == forwardmsg.RunFinishedSuccessfully {
		r.runsCompleted.Add(1)
	} else {
		r.runsFailed.Add(1)
	}

	err := session.Enqueue(&forwardmsg.Message{
		Kind:   forwardmsg.KindScriptFinished,
		Status: status,
	})
	if err != nil && !errors.Is(err, runtime.ErrSessionClosed) {
		r.logger.Error("failed to enqueue run-finished message",
			logger.SessionID(session.ID()),
			logger.Error(err))
	}
}
