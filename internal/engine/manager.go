package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/radiantcrm/triage-engine/internal/channel"
	"github.com/radiantcrm/triage-engine/internal/domain"
)

// ErrChannelNotConfigured is returned when a sync is requested for a
// channel the deployment has no connector for.
var ErrChannelNotConfigured = errors.New("channel not configured")

// ManagerConfig carries the sync timing knobs for the scheduler fleet.
// Channels missing from BaseIntervals use the scheduler default.
type ManagerConfig struct {
	BaseIntervals   map[domain.ChannelKind]time.Duration
	BackoffCap      time.Duration
	StaleFastDelay  time.Duration
	InteractionHold time.Duration
}

type schedKey struct {
	orgID   string
	channel domain.ChannelKind
}

// Manager supervises one SyncScheduler per (tenant, channel) pair.
// Schedulers are created lazily the first time a tenant is touched and
// run until the manager stops. All methods are safe for concurrent use.
type Manager struct {
	registry *channel.Registry
	items    ItemWriter
	states   SyncStateStore
	settings SettingsReader
	cfg      ManagerConfig

	mu         sync.Mutex
	schedulers map[schedKey]*SyncScheduler
	running    bool
}

// NewManager creates a sync engine manager. Call Start before EnsureOrg.
func NewManager(registry *channel.Registry, items ItemWriter, states SyncStateStore,
	settings SettingsReader, cfg ManagerConfig) *Manager {
	return &Manager{
		registry:   registry,
		items:      items,
		states:     states,
		settings:   settings,
		cfg:        cfg,
		schedulers: make(map[schedKey]*SyncScheduler),
	}
}

// Start marks the manager as accepting tenants.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("engine manager already running")
	}
	m.running = true
	log.Printf("[engine.Manager] Started (channels: %v)", m.registry.Kinds())
	return nil
}

// Stop halts every scheduler and waits for their loops to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	schedulers := make([]*SyncScheduler, 0, len(m.schedulers))
	for _, s := range m.schedulers {
		schedulers = append(schedulers, s)
	}
	m.schedulers = make(map[schedKey]*SyncScheduler)
	m.mu.Unlock()

	for _, s := range schedulers {
		s.Stop()
	}
	log.Printf("[engine.Manager] Stopped %d schedulers", len(schedulers))
}

// EnsureOrg starts the schedulers for every configured channel of a
// tenant. Safe to call on every request; after the first call it is a
// map lookup.
func (m *Manager) EnsureOrg(ctx context.Context, orgID string) error {
	for _, ch := range m.registry.Kinds() {
		if _, err := m.scheduler(ctx, orgID, ch); err != nil {
			return err
		}
	}
	return nil
}

// ForceSync runs an immediate sync of one channel and returns its result.
func (m *Manager) ForceSync(ctx context.Context, orgID string, ch domain.ChannelKind) error {
	s, err := m.scheduler(ctx, orgID, ch)
	if err != nil {
		return err
	}
	return s.ForceSync(ctx)
}

// QueueSync asks for a prompt, non-cancelling sync of one channel. An
// in-flight tick is left to finish and satisfies the request.
func (m *Manager) QueueSync(ctx context.Context, orgID string, ch domain.ChannelKind) error {
	s, err := m.scheduler(ctx, orgID, ch)
	if err != nil {
		return err
	}
	s.Wake()
	return nil
}

// ForceSyncAll force-syncs every configured channel of a tenant. All
// channels are attempted; the first error is returned.
func (m *Manager) ForceSyncAll(ctx context.Context, orgID string) error {
	var firstErr error
	for _, ch := range m.registry.Kinds() {
		if err := m.ForceSync(ctx, orgID, ch); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// WakeIfStale pulls the next tick forward on any of the tenant's
// channels whose data has gone stale. Called when a list surface reads.
func (m *Manager) WakeIfStale(orgID string) {
	for _, s := range m.schedulersFor(orgID) {
		s.WakeIfStale()
	}
}

// MarkInteraction records a user mutation on the tenant so imminent
// ticks hold off instead of racing the edit.
func (m *Manager) MarkInteraction(orgID string) {
	for _, s := range m.schedulersFor(orgID) {
		s.MarkInteraction()
	}
}

// SetStaleThreshold pushes a changed staleness policy into the tenant's
// running schedulers. Wired to guardrail settings updates.
func (m *Manager) SetStaleThreshold(orgID string, d time.Duration) {
	for _, s := range m.schedulersFor(orgID) {
		s.SetStaleThreshold(d)
	}
}

// Stats snapshots the scheduler counters for a tenant's channels.
func (m *Manager) Stats(orgID string) map[domain.ChannelKind]SchedulerStats {
	out := make(map[domain.ChannelKind]SchedulerStats)
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.schedulers {
		if key.orgID == orgID {
			out[key.channel] = s.Stats()
		}
	}
	return out
}

// Running reports whether the manager accepts tenants.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SchedulerCount returns the number of live schedulers across all tenants.
func (m *Manager) SchedulerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.schedulers)
}

// scheduler returns the running scheduler for (org, channel), creating
// and seeding it on first touch.
func (m *Manager) scheduler(ctx context.Context, orgID string, ch domain.ChannelKind) (*SyncScheduler, error) {
	key := schedKey{orgID: orgID, channel: ch}

	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil, fmt.Errorf("engine manager not running")
	}
	if s, ok := m.schedulers[key]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	conn, ok := m.registry.Get(ch)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrChannelNotConfigured, ch)
	}

	cfg := m.schedulerConfig(ch)
	// A failed settings read falls back to the default threshold; the
	// listener hook corrects it on the next settings write.
	if s, err := m.settings.Get(ctx, orgID); err == nil {
		cfg.StaleThreshold = s.StaleThreshold()
	}

	syncer := &channelSyncer{
		orgID:     orgID,
		connector: conn,
		items:     m.items,
		states:    m.states,
		settings:  m.settings,
	}
	sched := NewSyncScheduler(orgID, ch, syncer, cfg)

	// Seed the staleness clock from persisted state. Missing or
	// unreadable state just means an early first tick.
	if st, err := m.states.Get(ctx, orgID, ch); err == nil && st.LastSuccessAt != nil {
		sched.SetLastSuccess(*st.LastSuccessAt)
	}

	if err := sched.Start(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if existing, ok := m.schedulers[key]; ok {
		// Lost a creation race; ours never served anyone.
		m.mu.Unlock()
		sched.Stop()
		return existing, nil
	}
	if !m.running {
		m.mu.Unlock()
		sched.Stop()
		return nil, fmt.Errorf("engine manager not running")
	}
	m.schedulers[key] = sched
	m.mu.Unlock()
	return sched, nil
}

func (m *Manager) schedulersFor(orgID string) []*SyncScheduler {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*SyncScheduler
	for key, s := range m.schedulers {
		if key.orgID == orgID {
			out = append(out, s)
		}
	}
	return out
}

func (m *Manager) schedulerConfig(ch domain.ChannelKind) SchedulerConfig {
	return SchedulerConfig{
		BaseInterval:    m.cfg.BaseIntervals[ch],
		BackoffCap:      m.cfg.BackoffCap,
		StaleFastDelay:  m.cfg.StaleFastDelay,
		InteractionHold: m.cfg.InteractionHold,
	}
}
