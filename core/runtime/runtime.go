package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/appkit/core/forwardmsg"
	"github.com/dmitrymomot/appkit/core/msgcache"
	"github.com/dmitrymomot/appkit/pkg/stats"
)

// CacheablePolicy decides whether a message is worth routing through the
// message cache. The cache works correctly regardless of which messages the
// policy selects.
type CacheablePolicy func(msg *forwardmsg.Message) bool

// registryOp is a session-registry mutation or event delivery requested from
// an arbitrary goroutine, to be applied on the dispatch loop goroutine at a
// defined point (never mid-iteration over a session's queue).
type registryOp struct {
	register *sessionInfo
	closeID  uuid.UUID
	event    *sessionEvent
}

type sessionEvent struct {
	sessionID uuid.UUID
	event     Event
}

// Runtime is the session broker: it owns the session registry and the
// message cache, and runs the single-goroutine dispatch loop that
// multiplexes delivery of every session's output to its client.
//
// Producer goroutines (one script runner per session) communicate with the
// loop only by enqueuing into their session's queue and signaling the
// data-ready channel. Registration, removal and event delivery may be
// requested from any goroutine; they are funneled onto the loop goroutine.
type Runtime struct {
	cfg       Config
	cache     *msgcache.Cache
	statsMgr  *stats.Manager
	cacheable CacheablePolicy
	logger    *slog.Logger

	// sessions is owned by the dispatch loop goroutine. Everything else
	// goes through pendingOps.
	sessions map[uuid.UUID]*sessionInfo

	pendingMu  sync.Mutex
	pendingOps []registryOp
	accepting  bool

	stateMu sync.RWMutex
	state   State

	mustStop        chan struct{}
	stopOnce        sync.Once
	registryChanged chan struct{}
	needSendData    chan struct{}

	mu      sync.Mutex
	started bool
	done    chan struct{}

	// Observability metrics
	sessionCount    atomic.Int32
	messagesSent    atomic.Int64
	referencesSent  atomic.Int64
	sessionsCreated atomic.Int64
	sessionsClosed  atomic.Int64
}

// RuntimeStats provides observability metrics for monitoring and debugging.
type RuntimeStats struct {
	MessagesSent    int64 // Total messages delivered to clients (full or reference)
	ReferencesSent  int64 // Messages replaced by hash-only references
	SessionsCreated int64 // Total sessions ever registered
	SessionsClosed  int64 // Total sessions torn down
	Sessions        int32 // Currently registered sessions
	State           State // Current lifecycle state
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger configures structured logging for the runtime.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMessageCache replaces the runtime's message cache. Useful for sharing
// a cache with an external endpoint that serves full payloads by hash.
func WithMessageCache(cache *msgcache.Cache) Option {
	return func(r *Runtime) {
		if cache != nil {
			r.cache = cache
		}
	}
}

// WithStatsManager registers the runtime's caches with the given stats
// manager instead of a private one.
func WithStatsManager(mgr *stats.Manager) Option {
	return func(r *Runtime) {
		if mgr != nil {
			r.statsMgr = mgr
		}
	}
}

// WithCacheablePolicy overrides the default cacheability policy.
func WithCacheablePolicy(policy CacheablePolicy) Option {
	return func(r *Runtime) {
		if policy != nil {
			r.cacheable = policy
		}
	}
}

// New creates a Runtime. The dispatch loop is not running until Start is
// called.
func New(cfg Config, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		cfg:             cfg.normalize(),
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		sessions:        make(map[uuid.UUID]*sessionInfo),
		accepting:       true,
		state:           StateInitial,
		mustStop:        make(chan struct{}),
		registryChanged: make(chan struct{}, 1),
		needSendData:    make(chan struct{}, 1),
		done:            make(chan struct{}),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.cache == nil {
		r.cache = msgcache.New(msgcache.WithLogger(r.logger))
	}
	if r.statsMgr == nil {
		r.statsMgr = stats.NewManager()
	}
	if r.cacheable == nil {
		minSize := r.cfg.MinCachedMessageSize
		r.cacheable = func(msg *forwardmsg.Message) bool {
			return msg.Kind == forwardmsg.KindDelta && msg.Size() >= minSize
		}
	}

	r.statsMgr.RegisterProvider(r.cache)

	return r, nil
}

// MessageCache returns the runtime's message cache, e.g. for serving full
// payloads by hash to clients that received a reference.
func (r *Runtime) MessageCache() *msgcache.Cache {
	return r.cache
}

// StatsManager returns the stats manager aggregating the runtime's caches.
func (r *Runtime) StatsManager() *stats.Manager {
	return r.statsMgr
}

// Start runs the dispatch loop. This is a blocking operation that returns
// after the runtime has fully stopped, either via Stop or via context
// cancellation. Use Run() for the errgroup pattern or call this in a
// goroutine.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return ErrAlreadyStarted
	}
	r.started = true
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "runtime started",
		slog.Uint64("max_cached_message_age", r.cfg.MaxCachedMessageAge),
		slog.Int("min_cached_message_size", r.cfg.MinCachedMessageSize))

	// Context cancellation is just another stop request; the loop itself
	// only ever watches mustStop.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			r.requestStop()
		case <-watchDone:
		}
	}()

	r.loop()

	return ctx.Err()
}

// Stop requests a cooperative shutdown and waits for the dispatch loop to
// drain, tear down every session and report Stopped. Returns
// ErrShutdownTimeout if that takes longer than the configured timeout.
// Safe to call from any goroutine; subsequent calls are no-ops that wait
// the same way.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()

	if !started {
		return ErrNotStarted
	}

	r.requestStop()

	select {
	case <-r.done:
		return nil
	case <-time.After(r.cfg.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// Run provides errgroup compatibility for coordinated lifecycle management.
// The returned function starts the runtime and performs a graceful stop when
// the context is cancelled.
func (r *Runtime) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() {
			errCh <- r.Start(ctx)
		}()

		select {
		case <-ctx.Done():
			_ = r.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// requestStop transitions to Stopping and wakes the loop. The state write
// happens here, off the loop goroutine, so that session operations issued
// after a stop request are rejected immediately (mirroring the loop-external
// stop transition of the lifecycle model).
func (r *Runtime) requestStop() {
	r.stopOnce.Do(func() {
		r.stateMu.Lock()
		if r.state != StateStopped {
			r.state = StateStopping
		}
		r.stateMu.Unlock()

		r.logger.Info("runtime stopping")
		close(r.mustStop)
	})
}

// CreateSession registers a new session for the given client and starts its
// script runner on a dedicated goroutine. It returns the session's unique
// ID immediately; the registration itself is applied on the dispatch loop
// goroutine.
//
// Returns ErrRuntimeStopped after a stop has been requested.
func (r *Runtime) CreateSession(client SessionClient, runner ScriptRunner) (uuid.UUID, error) {
	if client == nil {
		return uuid.Nil, ErrClientNil
	}
	if runner == nil {
		return uuid.Nil, ErrRunnerNil
	}
	if st := r.getState(); st == StateStopping || st == StateStopped {
		return uuid.Nil, fmt.Errorf("%w: can't create session (state=%s)", ErrRuntimeStopped, st)
	}

	id := uuid.New()
	handle := newSessionHandle(id, r.signalDataReady)
	ctx, cancel := context.WithCancel(context.Background())

	info := &sessionInfo{
		id:     id,
		handle: handle,
		client: client,
		runner: runner,
		cancel: cancel,
	}

	go runner.Run(ctx, handle)

	// The state check above races with requestStop; the acceptance flag under
	// pendingMu is the authoritative gate. A registration refused here must
	// tear its runner down itself, since no sweep will ever see it.
	if !r.enqueueOp(registryOp{register: info}) {
		info.teardown()
		return uuid.Nil, fmt.Errorf("%w: can't create session (state=%s)", ErrRuntimeStopped, r.getState())
	}
	r.sessionsCreated.Add(1)

	r.logger.Debug("session created", slog.String("session_id", id.String()))
	return id, nil
}

// CloseSession requests removal of a session. Closing an unknown or
// already-closed session is not an error. Returns ErrRuntimeStopped after a
// stop has been requested (the stop itself tears every session down).
func (r *Runtime) CloseSession(id uuid.UUID) error {
	if st := r.getState(); st == StateStopping || st == StateStopped {
		return fmt.Errorf("%w: can't close session (state=%s)", ErrRuntimeStopped, st)
	}

	if !r.enqueueOp(registryOp{closeID: id}) {
		return fmt.Errorf("%w: can't close session (state=%s)", ErrRuntimeStopped, r.getState())
	}
	return nil
}

// HandleEvent forwards an opaque client event to the session's script
// runner. Events for unknown sessions are logged and discarded, since a
// client may race its own disconnect.
func (r *Runtime) HandleEvent(sessionID uuid.UUID, event Event) error {
	if st := r.getState(); st == StateStopping || st == StateStopped {
		return fmt.Errorf("%w: can't handle event (state=%s)", ErrRuntimeStopped, st)
	}

	if !r.enqueueOp(registryOp{event: &sessionEvent{sessionID: sessionID, event: event}}) {
		return fmt.Errorf("%w: can't handle event (state=%s)", ErrRuntimeStopped, r.getState())
	}
	return nil
}

// SessionCount returns the number of currently registered sessions. Safe to
// call from any goroutine.
func (r *Runtime) SessionCount() int {
	return int(r.sessionCount.Load())
}

// Stats returns current runtime metrics. Safe to call from any goroutine.
func (r *Runtime) Stats() RuntimeStats {
	return RuntimeStats{
		MessagesSent:    r.messagesSent.Load(),
		ReferencesSent:  r.referencesSent.Load(),
		SessionsCreated: r.sessionsCreated.Load(),
		SessionsClosed:  r.sessionsClosed.Load(),
		Sessions:        r.sessionCount.Load(),
		State:           r.getState(),
	}
}

// Healthcheck validates that the dispatch loop is running. Suitable for use
// with health check endpoints.
func (r *Runtime) Healthcheck(ctx context.Context) error {
	switch st := r.getState(); st {
	case StateInitial:
		return errors.Join(ErrHealthcheckFailed, ErrNotStarted)
	case StateStopping, StateStopped:
		return errors.Join(ErrHealthcheckFailed, ErrRuntimeStopped)
	default:
		return nil
	}
}

// enqueueOp appends a registry request and wakes the loop. It reports false
// once shutdown has performed its final pending-ops sweep; from that point no
// op can ever be applied, so callers must not hand anything off.
func (r *Runtime) enqueueOp(op registryOp) bool {
	r.pendingMu.Lock()
	if !r.accepting {
		r.pendingMu.Unlock()
		return false
	}
	r.pendingOps = append(r.pendingOps, op)
	r.pendingMu.Unlock()

	signal(r.registryChanged)
	return true
}

func (r *Runtime) signalDataReady() {
	signal(r.needSendData)
}

// signal performs a non-blocking send on a buffered signal channel; a
// pending signal is enough, duplicates carry no information.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (r *Runtime) stopRequested() bool {
	select {
	case <-r.mustStop:
		return true
	default:
		return false
	}
}

// loop is the dispatch loop. It runs on exactly one goroutine; all session
// registry mutations happen here.
func (r *Runtime) loop() {
	if r.getState() == StateInitial {
		r.setState(StateWaitingForFirstSession)
	}

	for {
		r.applyPendingOps()

		if r.stopRequested() {
			break
		}

		switch r.getState() {
		case StateWaitingForFirstSession, StateNoSessionsConnected:
			select {
			case <-r.mustStop:
			case <-r.registryChanged:
			}

		case StateOneOrMoreSessionsConnected:
			r.flushSessions()

			// Pace between flush passes so a session producing a steady
			// stream cannot monopolize the loop.
			if r.cfg.FlushInterval > 0 {
				select {
				case <-r.mustStop:
				case <-time.After(r.cfg.FlushInterval):
				}
			}

			select {
			case <-r.mustStop:
			case <-r.needSendData:
			case <-r.registryChanged:
			}

		default:
			// Stopping: requestStop has set the state and is about to close
			// (or has closed) mustStop.
			<-r.mustStop
		}

		if r.stopRequested() {
			break
		}
	}

	r.shutdown()
}

// flushSessions drains every registered session's queue once, in FIFO order
// per session. The registry is snapshotted first so that removals triggered
// by disconnects cannot corrupt the iteration.
func (r *Runtime) flushSessions() {
	// Drain the data-ready signal before flushing: anything enqueued after
	// this point re-arms it and the loop wakes again.
	select {
	case <-r.needSendData:
	default:
	}

	infos := make([]*sessionInfo, 0, len(r.sessions))
	for _, info := range r.sessions {
		infos = append(infos, info)
	}

	for _, info := range infos {
		// Cooperative stop check between sessions so that flushing many
		// backlogs cannot starve the stop signal.
		if r.stopRequested() {
			return
		}
		if _, ok := r.sessions[info.id]; !ok {
			continue
		}

		for _, msg := range info.handle.flush() {
			if err := r.sendMessage(info, msg); err != nil {
				if errors.Is(err, ErrSessionClientDisconnected) {
					r.logger.Debug("client disconnected, removing session",
						slog.String("session_id", info.id.String()))
					r.removeSession(info.id)
					break
				}
				r.logger.Error("failed to deliver message",
					slog.String("session_id", info.id.String()),
					slog.String("error", err.Error()))
			}
		}
	}
}

// sendMessage delivers one message to a session's client, substituting a
// reference message when the client is known to already hold the payload.
// Runs on the loop goroutine.
func (r *Runtime) sendMessage(info *sessionInfo, msg *forwardmsg.Message) error {
	toSend := msg

	if r.cacheable(msg) {
		hash, err := forwardmsg.EnsureHash(msg)
		if err != nil {
			// An unhashable message is delivered in full; dedup is an
			// optimization, not a delivery requirement.
			r.logger.Error("failed to hash message",
				slog.String("session_id", info.id.String()),
				slog.String("error", err.Error()))
		} else {
			if r.cache.HasReference(msg, info.id) {
				// The client already holds this payload; send a reference.
				r.logger.Debug("sending cached message reference",
					slog.String("hash", hash),
					slog.String("session_id", info.id.String()))
				toSend = forwardmsg.NewReference(hash)
				r.referencesSent.Add(1)
			}

			// Always (re-)add: refreshes the session's generation mark so
			// the entry's age resets for this session.
			if err := r.cache.AddMessage(msg, info.id, info.generation); err != nil {
				r.logger.Error("failed to cache message",
					slog.String("session_id", info.id.String()),
					slog.String("error", err.Error()))
			}
		}
	}

	// A successful run completion advances the session's generation and
	// triggers the cache sweep scoped to this session. This happens whether
	// or not the delivery below succeeds.
	if msg.FinishedSuccessfully() {
		info.generation++
		r.cache.RemoveExpiredEntries(info.id, info.generation, r.cfg.MaxCachedMessageAge)
	}

	if err := info.client.WriteMessage(toSend); err != nil {
		return err
	}

	r.messagesSent.Add(1)
	return nil
}

// applyPendingOps applies queued registrations, removals and event
// deliveries. Runs on the loop goroutine at iteration boundaries.
func (r *Runtime) applyPendingOps() {
	r.pendingMu.Lock()
	ops := r.pendingOps
	r.pendingOps = nil
	r.pendingMu.Unlock()

	for _, op := range ops {
		switch {
		case op.register != nil:
			r.registerSession(op.register)
		case op.event != nil:
			info, ok := r.sessions[op.event.sessionID]
			if !ok {
				r.logger.Debug("discarding event for unknown session",
					slog.String("session_id", op.event.sessionID.String()))
				continue
			}
			info.runner.HandleEvent(op.event.event)
		default:
			r.removeSession(op.closeID)
		}
	}
}

// registerSession adds a session to the registry. A duplicate ID indicates
// a broker bug and aborts loudly.
func (r *Runtime) registerSession(info *sessionInfo) {
	if _, exists := r.sessions[info.id]; exists {
		panic(fmt.Sprintf("runtime: session ID %q registered multiple times", info.id))
	}

	r.sessions[info.id] = info
	r.sessionCount.Store(int32(len(r.sessions)))
	r.setState(StateOneOrMoreSessionsConnected)
}

// removeSession tears down a session and drops it from the registry.
// Removing an unknown ID is a no-op. Runs on the loop goroutine.
func (r *Runtime) removeSession(id uuid.UUID) {
	info, ok := r.sessions[id]
	if !ok {
		return
	}

	delete(r.sessions, id)
	r.sessionCount.Store(int32(len(r.sessions)))
	info.teardown()
	r.sessionsClosed.Add(1)

	r.logger.Debug("session closed", slog.String("session_id", id.String()))

	if len(r.sessions) == 0 && r.getState() == StateOneOrMoreSessionsConnected {
		r.setState(StateNoSessionsConnected)
	}
}

// shutdown tears down every still-registered session (and any registration
// that raced in after the stop request) and reports Stopped.
func (r *Runtime) shutdown() {
	r.setState(StateStopping)

	for id := range r.sessions {
		r.removeSession(id)
	}

	// Registrations enqueued after the final applyPendingOps would leak
	// their runner goroutines without this sweep. Closing the acceptance
	// flag in the same critical section guarantees every accepted
	// registration is seen either here or by the loop; anything later is
	// refused at enqueueOp and torn down by its caller.
	r.pendingMu.Lock()
	ops := r.pendingOps
	r.pendingOps = nil
	r.accepting = false
	r.pendingMu.Unlock()

	for _, op := range ops {
		if op.register != nil {
			op.register.teardown()
			r.sessionsClosed.Add(1)
		}
	}

	r.setState(StateStopped)
	close(r.done)

	r.logger.Info("runtime stopped",
		slog.Int64("messages_sent", r.messagesSent.Load()),
		slog.Int64("references_sent", r.referencesSent.Load()),
		slog.Int64("sessions_closed", r.sessionsClosed.Load()))
}
