package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radiantcrm/triage-engine/internal/domain"
	"github.com/radiantcrm/triage-engine/internal/pkg/distlock"
	"github.com/radiantcrm/triage-engine/internal/pkg/metrics"
	"github.com/radiantcrm/triage-engine/internal/service/inbox"
)

// =============================================================================
// AUTOPILOT WORKER
// =============================================================================
// The autopilot polls for drafted items whose tenants have automation
// switched on and pushes each through the auto-send path. It is a pure
// driver: every guardrail decision, the quota claim, and the state
// transition happen inside the inbox service at commit time, so a candidate
// picked up here can still come out as a skip.
//
// A per-item distributed lock keeps multiple engine instances from
// double-claiming a candidate; the lock covers the attempt, the status
// compare-and-set covers everything after it.

const (
	// DefaultAutopilotTickInterval is the poll interval between batches.
	DefaultAutopilotTickInterval = 20 * time.Second

	// DefaultAutopilotBatchSize bounds how many candidates one tick takes.
	DefaultAutopilotBatchSize = 10

	// DefaultAutopilotLockTTL bounds how long one item claim may live.
	DefaultAutopilotLockTTL = 30 * time.Second
)

// CandidateSource lists drafted items eligible to attempt, oldest first.
type CandidateSource interface {
	ListAutoSendCandidates(ctx context.Context, limit int) ([]domain.InboundItem, error)
}

// AutoSender commits one automated send attempt.
type AutoSender interface {
	AutoSend(ctx context.Context, orgID, itemID string) (*inbox.AutoSendResult, error)
}

// AutopilotConfig carries the worker knobs. Zero values fall back to the
// defaults above.
type AutopilotConfig struct {
	TickInterval time.Duration
	BatchSize    int
	LockTTL      time.Duration
}

func (c AutopilotConfig) withDefaults() AutopilotConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultAutopilotTickInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultAutopilotBatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultAutopilotLockTTL
	}
	return c
}

// Autopilot is the automated send worker.
type Autopilot struct {
	candidates CandidateSource
	sender     AutoSender

	// Locking backends; redis preferred, advisory locks as fallback.
	redisClient *redis.Client
	db          *sql.DB

	workerID string
	cfg      AutopilotConfig

	// Stats
	itemsSent    int64
	itemsSkipped int64
	errors       int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewAutopilot creates an autopilot worker. redisClient may be nil; item
// claims then fall back to Postgres advisory locks on db.
func NewAutopilot(candidates CandidateSource, sender AutoSender, redisClient *redis.Client, db *sql.DB, cfg AutopilotConfig) *Autopilot {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return &Autopilot{
		candidates:  candidates,
		sender:      sender,
		redisClient: redisClient,
		db:          db,
		workerID:    fmt.Sprintf("autopilot-%s-%d", hostname, time.Now().UnixNano()%10000),
		cfg:         cfg.withDefaults(),
	}
}

// Start begins the polling loop.
func (a *Autopilot) Start() error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("autopilot already running")
	}
	a.running = true
	a.ctx, a.cancel = context.WithCancel(context.Background())
	a.mu.Unlock()

	log.Printf("[Autopilot %s] Starting (tick: %v, batch: %d)",
		a.workerID, a.cfg.TickInterval, a.cfg.BatchSize)

	a.wg.Add(1)
	go a.loop()
	return nil
}

// Stop halts the loop and waits for the in-flight batch to finish.
func (a *Autopilot) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
	log.Printf("[Autopilot %s] Stopped. Sent: %d, skipped: %d, errors: %d",
		a.workerID,
		atomic.LoadInt64(&a.itemsSent),
		atomic.LoadInt64(&a.itemsSkipped),
		atomic.LoadInt64(&a.errors))
}

func (a *Autopilot) loop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.processBatch()
		}
	}
}

func (a *Autopilot) processBatch() {
	ctx, cancel := context.WithTimeout(a.ctx, 60*time.Second)
	defer cancel()

	items, err := a.candidates.ListAutoSendCandidates(ctx, a.cfg.BatchSize)
	if err != nil {
		if ctx.Err() == nil {
			atomic.AddInt64(&a.errors, 1)
			log.Printf("[Autopilot %s] Listing candidates failed: %v", a.workerID, err)
		}
		return
	}

	for i := range items {
		if ctx.Err() != nil {
			return
		}
		a.processItem(ctx, &items[i])
	}
}

func (a *Autopilot) processItem(ctx context.Context, it *domain.InboundItem) {
	lock := distlock.NewLock(a.redisClient, a.db, fmt.Sprintf("autosend:%s", it.ID), a.cfg.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Autopilot %s] Lock error for item %s: %v", a.workerID, it.ID, err)
		return
	}
	if !acquired {
		// Another instance holds the claim.
		return
	}
	defer lock.Release(ctx)

	res, err := a.sender.AutoSend(ctx, it.OrganizationID, it.ID)
	if err != nil {
		atomic.AddInt64(&a.errors, 1)
		metrics.RecordAutoSend("failed")
		log.Printf("[Autopilot %s] Auto-send of item %s failed: %v", a.workerID, it.ID, err)
		return
	}
	if res.Sent {
		atomic.AddInt64(&a.itemsSent, 1)
		metrics.RecordAutoSend("sent")
		return
	}
	atomic.AddInt64(&a.itemsSkipped, 1)
	metrics.RecordAutoSend("skipped")
}

// Stats returns the worker's counters.
func (a *Autopilot) Stats() (sent, skipped, errs int64) {
	return atomic.LoadInt64(&a.itemsSent),
		atomic.LoadInt64(&a.itemsSkipped),
		atomic.LoadInt64(&a.errors)
}
