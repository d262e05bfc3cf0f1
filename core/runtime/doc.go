// Package runtime implements the session broker for an interactive
// application server: a single-goroutine dispatch loop that multiplexes
// outbound message delivery for many concurrently running sessions, with
// content-addressed deduplication of large repeated payloads.
//
// # Model
//
// Each session runs its script on a dedicated producer goroutine (its
// ScriptRunner) and enqueues output messages through its SessionHandle. The
// dispatch loop wakes on a data-ready signal, drains every session's queue
// in FIFO order, and for each message consults the message cache: if the
// session's client is known to already hold an identical payload, a
// hash-only reference message is delivered instead of the full payload.
// When a message marks a successfully finished script run, the session's
// generation counter advances and cache references that session hasn't
// refreshed within the configured number of generations are evicted.
//
// # Lifecycle
//
// The runtime moves through initial → waiting_for_first_session →
// {one_or_more_sessions_connected ⇄ no_sessions_connected} → stopping →
// stopped. Stop (or context cancellation) is cooperative: the in-flight
// flush pass completes, then every session is torn down before the loop
// reports stopped.
//
// # Concurrency
//
// CreateSession, CloseSession, HandleEvent and Stop are safe to call from
// any goroutine; registry mutations are funneled onto the loop goroutine and
// applied at iteration boundaries, never mid-iteration over a session's
// queue. Within one session, messages reach the client in exact enqueue
// order; there is no ordering guarantee across sessions.
//
// Example:
//
//	rt, _ := runtime.New(cfg, runtime.WithLogger(logger))
//	go rt.Start(ctx)
//
//	id, err := rt.CreateSession(wsClient, myRunner)
//	...
//	rt.HandleEvent(id, runtime.Event{Kind: "rerun"})
//	...
//	rt.Stop()
package runtime
