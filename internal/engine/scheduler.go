package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radiantcrm/triage-engine/internal/domain"
)

// =============================================================================
// SYNC SCHEDULER
// =============================================================================
// One SyncScheduler owns the pull loop for a single (tenant, channel) pair.
// It guarantees at most one in-flight tick, schedules the next tick from the
// completion of the previous one, backs off exponentially on failure, and
// resets to the base interval on success.
//
// Key behaviors:
// - Force-sync cancels any in-flight tick, runs immediately, and resets
//   backoff on success. Concurrent force requests coalesce into one run.
// - Cancellation is silent: a superseded tick never records an error and
//   never grows the backoff. The superseding operation owns the schedule.
// - Ticks due within the interaction hold window are deferred so refreshes
//   do not race user edits.
// - A stale wake (list surface active while data is old) schedules one
//   near-immediate tick without touching the steady-state interval, and
//   never overrides failure backoff.

const syncFetchKind = "sync"

// Syncer executes one synchronization pass: pull from the channel, upsert
// items, persist sync state. Implementations must honor ctx cancellation
// and must not record a failure for a cancelled pass.
type Syncer interface {
	Sync(ctx context.Context) error
}

// SyncerFunc adapts a function to the Syncer interface.
type SyncerFunc func(ctx context.Context) error

// Sync calls f(ctx).
func (f SyncerFunc) Sync(ctx context.Context) error { return f(ctx) }

// SchedulerConfig carries the tick timing knobs. Zero values fall back to
// the listed defaults.
type SchedulerConfig struct {
	// BaseInterval is the steady-state delay between ticks (default 15s).
	BaseInterval time.Duration
	// BackoffCap bounds the failure backoff (default 120s).
	BackoffCap time.Duration
	// StaleFastDelay is the near-immediate delay used for stale wakes and
	// the very first tick of a never-synced channel (default 2s).
	StaleFastDelay time.Duration
	// InteractionHold defers ticks that fall within this window after a
	// user interaction (default 10s).
	InteractionHold time.Duration
	// StaleThreshold is the tenant's staleness policy parameter
	// (default 10m).
	StaleThreshold time.Duration
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.BaseInterval <= 0 {
		c.BaseInterval = 15 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 120 * time.Second
	}
	if c.StaleFastDelay <= 0 {
		c.StaleFastDelay = 2 * time.Second
	}
	if c.InteractionHold <= 0 {
		c.InteractionHold = 10 * time.Second
	}
	if c.StaleThreshold <= 0 {
		c.StaleThreshold = 10 * time.Minute
	}
	return c
}

// SchedulerStats is a point-in-time snapshot of one scheduler's counters.
type SchedulerStats struct {
	TicksCompleted      int64      `json:"ticks_completed"`
	TickFailures        int64      `json:"tick_failures"`
	ForcedSyncs         int64      `json:"forced_syncs"`
	TicksDeferred       int64      `json:"ticks_deferred"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastSuccessAt       *time.Time `json:"last_success_at"`
	NextDelay           string     `json:"next_delay"`
}

// SyncScheduler drives periodic channel synchronization for one tenant
// channel.
type SyncScheduler struct {
	orgID   string
	channel domain.ChannelKind
	syncer  Syncer

	cfg       SchedulerConfig
	coalescer *Coalescer

	// Stats
	ticksCompleted int64
	tickFailures   int64
	forcedSyncs    int64
	ticksDeferred  int64

	// Scheduling state
	consecutiveFailures int
	lastSuccessAt       time.Time
	lastInteraction     time.Time
	pendingForce        []chan error

	// Control
	forceCh chan struct{}
	wakeCh  chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewSyncScheduler creates a scheduler for one tenant channel. Call
// SetLastSuccess before Start to seed the staleness clock from persisted
// sync state.
func NewSyncScheduler(orgID string, channel domain.ChannelKind, syncer Syncer, cfg SchedulerConfig) *SyncScheduler {
	return &SyncScheduler{
		orgID:     orgID,
		channel:   channel,
		syncer:    syncer,
		cfg:       cfg.withDefaults(),
		coalescer: NewCoalescer(),
		forceCh:   make(chan struct{}, 1),
		wakeCh:    make(chan struct{}, 1),
	}
}

// SetLastSuccess seeds the in-memory staleness clock, typically from the
// persisted ChannelSyncState at startup.
func (s *SyncScheduler) SetLastSuccess(t time.Time) {
	s.mu.Lock()
	s.lastSuccessAt = t
	s.mu.Unlock()
}

// SetStaleThreshold updates the staleness policy parameter after a settings
// change.
func (s *SyncScheduler) SetStaleThreshold(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.cfg.StaleThreshold = d
	s.mu.Unlock()
}

// Start launches the tick loop. It returns an error if already running.
func (s *SyncScheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sync scheduler %s/%s already running", s.orgID, s.channel)
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	log.Printf("[SyncScheduler %s/%s] Starting (base: %v, cap: %v)",
		s.orgID, s.channel, s.cfg.BaseInterval, s.cfg.BackoffCap)

	s.wg.Add(1)
	go s.run()
	return nil
}

// Stop cancels any in-flight tick and waits for the loop to exit.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.coalescer.CancelAll()
	s.wg.Wait()

	log.Printf("[SyncScheduler %s/%s] Stopped. Ticks: %d, failures: %d, forced: %d",
		s.orgID, s.channel,
		atomic.LoadInt64(&s.ticksCompleted),
		atomic.LoadInt64(&s.tickFailures),
		atomic.LoadInt64(&s.forcedSyncs))
}

// ForceSync cancels any in-flight automatic tick, runs a sync immediately,
// and returns that sync's result. Multiple concurrent callers coalesce into
// a single run and all receive its result.
func (s *SyncScheduler) ForceSync(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("sync scheduler %s/%s not running", s.orgID, s.channel)
	}
	reply := make(chan error, 1)
	s.pendingForce = append(s.pendingForce, reply)
	s.mu.Unlock()

	// Invalidate the in-flight tick so the forced run owns the schedule.
	s.coalescer.Cancel(syncFetchKind)

	select {
	case s.forceCh <- struct{}{}:
	default:
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Wake asks for a regular (non-forced) sync attempt soon. It never cancels
// an in-flight tick and never shortens a failure backoff; outside of those
// cases the next tick is pulled forward to the stale-fast delay.
func (s *SyncScheduler) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

// WakeIfStale is Wake gated on staleness: it only pulls the next tick
// forward when the channel has exceeded the stale threshold. Called when an
// active surface observes old data.
func (s *SyncScheduler) WakeIfStale() {
	if s.IsStale(time.Now()) {
		s.Wake()
	}
}

// MarkInteraction records a user mutation; ticks due within the interaction
// hold window after this moment are deferred.
func (s *SyncScheduler) MarkInteraction() {
	s.mu.Lock()
	s.lastInteraction = time.Now()
	s.mu.Unlock()
}

// IsStale reports whether the last successful sync is older than the stale
// threshold. A channel that has never synced is stale.
func (s *SyncScheduler) IsStale(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSuccessAt.IsZero() {
		return true
	}
	return now.Sub(s.lastSuccessAt) > s.cfg.StaleThreshold
}

// Stats returns a snapshot of the scheduler's counters.
func (s *SyncScheduler) Stats() SchedulerStats {
	s.mu.RLock()
	failures := s.consecutiveFailures
	last := s.lastSuccessAt
	s.mu.RUnlock()

	st := SchedulerStats{
		TicksCompleted:      atomic.LoadInt64(&s.ticksCompleted),
		TickFailures:        atomic.LoadInt64(&s.tickFailures),
		ForcedSyncs:         atomic.LoadInt64(&s.forcedSyncs),
		TicksDeferred:       atomic.LoadInt64(&s.ticksDeferred),
		ConsecutiveFailures: failures,
		NextDelay:           s.nextDelay().String(),
	}
	if !last.IsZero() {
		t := last
		st.LastSuccessAt = &t
	}
	return st
}

// =============================================================================
// TICK LOOP
// =============================================================================

func (s *SyncScheduler) run() {
	defer s.wg.Done()

	timer := time.NewTimer(s.initialDelay())
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.failPendingForces(s.ctx.Err())
			return

		case <-s.forceCh:
			s.runForced()
			s.rearm(timer, s.nextDelay())

		case <-s.wakeCh:
			if d, ok := s.fastPathDelay(time.Now()); ok {
				s.rearm(timer, d)
			}

		case <-timer.C:
			if wait, held := s.interactionWait(time.Now()); held {
				atomic.AddInt64(&s.ticksDeferred, 1)
				timer.Reset(wait)
				continue
			}
			s.runScheduled()
			s.drainWake()
			timer.Reset(s.nextDelay())
		}
	}
}

// runScheduled executes one automatic tick. A cancelled tick records
// nothing: the operation that superseded it owns future scheduling.
func (s *SyncScheduler) runScheduled() {
	tctx, gen := s.coalescer.Begin(s.ctx, syncFetchKind)
	err := s.syncer.Sync(tctx)
	if isCancellation(err) {
		return
	}
	s.coalescer.Commit(syncFetchKind, gen, func() { s.recordResult(err) })
}

// runForced executes one forced tick and answers every waiter that asked
// for it. A forced run superseded by a newer force hands its waiters over
// to that newer run.
func (s *SyncScheduler) runForced() {
	s.mu.Lock()
	waiters := s.pendingForce
	s.pendingForce = nil
	s.mu.Unlock()

	atomic.AddInt64(&s.forcedSyncs, 1)

	tctx, gen := s.coalescer.Begin(s.ctx, syncFetchKind)
	err := s.syncer.Sync(tctx)

	if isCancellation(err) && s.ctx.Err() == nil {
		s.mu.Lock()
		s.pendingForce = append(waiters, s.pendingForce...)
		s.mu.Unlock()
		return
	}

	s.coalescer.Commit(syncFetchKind, gen, func() { s.recordResult(err) })
	for _, w := range waiters {
		w <- err
	}
}

func (s *SyncScheduler) recordResult(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.consecutiveFailures++
		atomic.AddInt64(&s.tickFailures, 1)
		log.Printf("[SyncScheduler %s/%s] Tick failed (consecutive: %d, next in %v): %v",
			s.orgID, s.channel, s.consecutiveFailures, s.delayLocked(), err)
		return
	}
	s.consecutiveFailures = 0
	s.lastSuccessAt = time.Now()
	atomic.AddInt64(&s.ticksCompleted, 1)
}

// nextDelay computes the wait before the next tick: exponential backoff
// while failing, the base interval otherwise.
func (s *SyncScheduler) nextDelay() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.delayLocked()
}

func (s *SyncScheduler) delayLocked() time.Duration {
	if s.consecutiveFailures == 0 {
		return s.cfg.BaseInterval
	}
	d := s.cfg.BaseInterval
	for i := 0; i < s.consecutiveFailures; i++ {
		d *= 2
		if d >= s.cfg.BackoffCap {
			return s.cfg.BackoffCap
		}
	}
	return d
}

// initialDelay schedules the very first tick: a never-synced or stale
// channel pulls almost immediately, a warm one waits the base interval.
func (s *SyncScheduler) initialDelay() time.Duration {
	if s.IsStale(time.Now()) {
		return s.cfg.StaleFastDelay
	}
	return s.cfg.BaseInterval
}

// fastPathDelay decides whether a wake may pull the next tick forward.
// Failure backoff always wins, and a wake during the interaction hold is
// ignored.
func (s *SyncScheduler) fastPathDelay(now time.Time) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.consecutiveFailures > 0 {
		return 0, false
	}
	if !s.lastInteraction.IsZero() && now.Sub(s.lastInteraction) < s.cfg.InteractionHold {
		return 0, false
	}
	return s.cfg.StaleFastDelay, true
}

// interactionWait reports whether a due tick falls inside the interaction
// hold window, and if so how long to defer it.
func (s *SyncScheduler) interactionWait(now time.Time) (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastInteraction.IsZero() {
		return 0, false
	}
	since := now.Sub(s.lastInteraction)
	if since >= s.cfg.InteractionHold {
		return 0, false
	}
	return s.cfg.InteractionHold - since, true
}

func (s *SyncScheduler) failPendingForces(err error) {
	s.mu.Lock()
	waiters := s.pendingForce
	s.pendingForce = nil
	s.mu.Unlock()
	for _, w := range waiters {
		w <- err
	}
}

func (s *SyncScheduler) drainWake() {
	select {
	case <-s.wakeCh:
	default:
	}
}

// rearm stops, drains, and resets a timer. Required dance for timers whose
// channel may already hold a fire.
func (s *SyncScheduler) rearm(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

// isCancellation distinguishes a deliberately superseded or aborted pass
// from a real failure. Deadline expiry counts as a transport failure, not a
// cancellation.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}
