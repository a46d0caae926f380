// Package battle runs the battle lifecycle: it keeps exactly one battle
// active, completes it at expiry, and starts the next one.
package battle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neo/battlearena/internal/config"
	"github.com/neo/battlearena/internal/cooldown"
	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/events"
	"github.com/neo/battlearena/internal/judging"
	"github.com/neo/battlearena/internal/logging"
	"github.com/neo/battlearena/internal/topic"
	"github.com/neo/battlearena/internal/types"
)

const (
	// DriftTolerance is how far a battle's stored window may differ from
	// the configured duration before it is force-completed
	DriftTolerance = 36 * time.Second

	// ReasonDurationChange marks a battle ended by reconfiguration
	ReasonDurationChange = "duration_change"

	// MaxContentLength caps the size of a cast
	MaxContentLength = 2000

	// DefaultWorkTimeout bounds one completion or creation cycle once it
	// has started, independent of whoever triggered it
	DefaultWorkTimeout = 5 * time.Minute
)

// ConfigSink persists battle tunables after UpdateConfig
type ConfigSink interface {
	Save(config.Battle) error
}

// Manager is the battle lifecycle orchestrator. Build one per process with
// New, call Start once, and route every trigger (HTTP requests, timers, the
// external worker) through EnsureConsistentState.
type Manager struct {
	db        database.DatabaseInterface
	topics    topic.Provider
	judge     judging.Judge
	events    events.Publisher
	cooldowns cooldown.Store
	sink      ConfigSink

	now            func() time.Time
	scheduler      Scheduler
	cooldownWindow time.Duration
	retryDelay     time.Duration
	workTimeout    time.Duration

	cfgMu sync.RWMutex
	cfg   config.Battle

	generating atomic.Bool
	completing atomic.Bool

	timerMu  sync.Mutex
	timers   []Timer
	armedFor string
	nextWake time.Time
	stopped  bool
	baseCtx  context.Context
	cancel   context.CancelFunc
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the wall clock
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithScheduler overrides the timer factory
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithCooldownWindow sets how long topic generation backs off after a
// rate limit
func WithCooldownWindow(d time.Duration) Option {
	return func(m *Manager) { m.cooldownWindow = d }
}

// WithRetryDelay sets the delay before retrying a failed completion cycle
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

// WithWorkTimeout bounds a started completion or creation cycle
func WithWorkTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.workTimeout = d
		}
	}
}

// WithConfigSink persists configuration updates
func WithConfigSink(sink ConfigSink) Option {
	return func(m *Manager) { m.sink = sink }
}

// New builds a Manager. It does nothing until Start is called.
func New(
	db database.DatabaseInterface,
	topics topic.Provider,
	judge judging.Judge,
	publisher events.Publisher,
	cooldowns cooldown.Store,
	cfg config.Battle,
	opts ...Option,
) (*Manager, error) {
	if db == nil || topics == nil {
		return nil, fmt.Errorf("battle manager needs a database and a topic provider")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid battle config: %w", err)
	}
	if judge == nil {
		judge = judging.LikesJudge{}
	}

	m := &Manager{
		db:             db,
		topics:         topics,
		judge:          judge,
		events:         publisher,
		cooldowns:      cooldowns,
		cfg:            cfg,
		now:            time.Now,
		scheduler:      realScheduler{},
		cooldownWindow: config.DefaultTopicCooldown,
		retryDelay:     config.DefaultCompletionRetryDelay,
		workTimeout:    DefaultWorkTimeout,
		stopped:        true,
		baseCtx:        context.Background(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cooldowns == nil {
		m.cooldowns = cooldown.NewDatabaseStore(db)
	}
	return m, nil
}

// Start enables timers and runs one reconciliation, which arms the expiry
// of a running battle, completes an expired one, or creates the first one
func (m *Manager) Start(ctx context.Context) error {
	m.timerMu.Lock()
	if !m.stopped {
		m.timerMu.Unlock()
		return nil
	}
	m.stopped = false
	m.baseCtx, m.cancel = context.WithCancel(context.Background())
	m.timerMu.Unlock()

	logging.LogBattleEvent("orchestrator_started", "", nil)
	return m.EnsureConsistentState(ctx)
}

// Stop clears pending timers and prevents new ones. Work already running
// finishes on its own.
func (m *Manager) Stop() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if m.stopped {
		return
	}
	m.stopped = true
	m.clearTimersLocked()
	if m.cancel != nil {
		m.cancel()
	}
	logging.LogBattleEvent("orchestrator_stopped", "", nil)
}

// EnsureConsistentState reconciles persisted battles with the clock. It
// completes at most one expired or drifted battle, creates a battle if none
// is active, and keeps the expiry timer armed. Safe to call concurrently and
// on every request. Expected failures (no topic, rate limit, work already in
// progress) are logged and swallowed; only failures to read state are
// returned.
func (m *Manager) EnsureConsistentState(ctx context.Context) error {
	now := m.now()

	expired, err := m.db.ListExpiredActiveBattles(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list expired battles: %w", err)
	}
	if len(expired) > 0 {
		m.completeBattle(ctx, expired[0].ID, "")
		return nil
	}

	current, err := m.db.GetCurrentBattle(ctx)
	if err != nil {
		return fmt.Errorf("failed to load current battle: %w", err)
	}

	if current != nil {
		if drift := m.durationDrift(current); drift > DriftTolerance {
			logging.LogBattleEvent("duration_drift_detected", current.ID, map[string]interface{}{
				"drift":            drift.String(),
				"stored_hours":     current.DurationHours,
				"configured_hours": m.GetConfig().DurationHours,
			})
			m.completeBattle(ctx, current.ID, ReasonDurationChange)
			return nil
		}
		if !m.isArmedFor(current.ID) {
			m.scheduleExpiry(current)
		}
		return nil
	}

	if _, err := m.createNewBattle(ctx); err != nil {
		logCreateFailure("reconcile", err)
	}
	return nil
}

// detach drops ctx's cancellation so a started cycle outlives the request
// or worker pass that triggered it
func (m *Manager) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.workTimeout)
}

// durationDrift is the gap between b's window and the configured duration
func (m *Manager) durationDrift(b *database.Battle) time.Duration {
	drift := b.EndTime.Sub(b.StartTime) - m.GetConfig().Duration()
	if drift < 0 {
		drift = -drift
	}
	return drift
}

// GetCurrentBattle returns the active battle or nil. It never mutates state.
func (m *Manager) GetCurrentBattle(ctx context.Context) (*database.Battle, error) {
	return m.db.GetCurrentBattle(ctx)
}

// openBattle returns the active battle if its window is still open
func (m *Manager) openBattle(ctx context.Context) (*database.Battle, error) {
	battle, err := m.db.GetCurrentBattle(ctx)
	if err != nil {
		return nil, err
	}
	if battle == nil || battle.Expired(m.now()) {
		return nil, ErrNoActiveBattle
	}
	return battle, nil
}

// JoinBattle records userID as a participant of the active battle
func (m *Manager) JoinBattle(ctx context.Context, userID, username string) (*database.Participation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}

	battle, err := m.openBattle(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := m.db.UpsertUser(ctx, userID, username); err != nil {
		return nil, err
	}

	joined, err := m.db.HasParticipation(ctx, battle.ID, userID)
	if err != nil {
		return nil, err
	}
	if joined {
		return nil, ErrAlreadyJoined
	}

	participation, err := m.db.CreateParticipation(ctx, battle.ID, userID, battle.MaxParticipants)
	switch {
	case errors.Is(err, database.ErrDuplicate):
		return nil, ErrAlreadyJoined
	case errors.Is(err, database.ErrCapacityReached):
		return nil, ErrBattleFull
	case err != nil:
		return nil, err
	}

	logging.LogBattleEvent("participant_joined", battle.ID, map[string]interface{}{
		"user_id": userID,
		"limit":   battle.MaxParticipants,
	})
	return participation, nil
}

// CreateSubmission stores userID's cast for the active battle. The user
// must have joined first and may submit once.
func (m *Manager) CreateSubmission(ctx context.Context, userID, content, side string) (*database.Cast, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUser
	}
	parsedSide, err := types.ParseSide(side)
	if err != nil {
		return nil, ErrInvalidSide
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > MaxContentLength {
		return nil, ErrContentTooLong
	}

	battle, err := m.openBattle(ctx)
	if err != nil {
		return nil, err
	}

	joined, err := m.db.HasParticipation(ctx, battle.ID, userID)
	if err != nil {
		return nil, err
	}
	if !joined {
		return nil, ErrMustJoin
	}

	cast := &database.Cast{
		BattleID: battle.ID,
		UserID:   userID,
		Side:     parsedSide,
		Content:  content,
	}
	if err := m.db.CreateCast(ctx, cast); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, ErrAlreadySubmitted
		}
		return nil, err
	}

	logging.LogBattleEvent("cast_submitted", battle.ID, map[string]interface{}{
		"user_id": userID,
		"cast_id": cast.ID,
		"side":    parsedSide,
	})
	return cast, nil
}

// TriggerBattleGeneration runs the creation half of reconciliation on
// demand and reports why nothing was created, if so
func (m *Manager) TriggerBattleGeneration(ctx context.Context) (*database.Battle, error) {
	battle, err := m.createNewBattle(ctx)
	if err != nil {
		logCreateFailure("manual", err)
		return nil, err
	}
	return battle, nil
}

// GetConfig returns the current battle tunables
func (m *Manager) GetConfig() config.Battle {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// ConfigUpdate is a partial change to the battle tunables. Nil fields are
// left alone.
type ConfigUpdate struct {
	DurationHours   *float64 `json:"duration_hours,omitempty"`
	MaxParticipants *int     `json:"max_participants,omitempty"`
	WinBonus        *int     `json:"win_bonus,omitempty"`
}

// UpdateConfig applies a partial update. A duration change takes effect on
// the next reconciliation, which ends the running battle with reason
// duration_change.
func (m *Manager) UpdateConfig(update ConfigUpdate) (config.Battle, error) {
	m.cfgMu.Lock()
	defer m.cfgMu.Unlock()

	next := m.cfg
	if update.DurationHours != nil {
		next.DurationHours = *update.DurationHours
	}
	if update.MaxParticipants != nil {
		next.MaxParticipants = *update.MaxParticipants
	}
	if update.WinBonus != nil {
		next.WinBonus = *update.WinBonus
	}
	if err := next.Validate(); err != nil {
		return m.cfg, err
	}
	if m.sink != nil {
		if err := m.sink.Save(next); err != nil {
			return m.cfg, fmt.Errorf("failed to persist config: %w", err)
		}
	}

	previous := m.cfg
	m.cfg = next
	logging.LogBattleEvent("config_updated", "", map[string]interface{}{
		"previous": previous,
		"current":  next,
	})
	return next, nil
}

// Status is a snapshot of the orchestrator's in-memory run state
type Status struct {
	Running       bool          `json:"running"`
	Generating    bool          `json:"generating"`
	Completing    bool          `json:"completing"`
	ArmedBattleID string        `json:"armed_battle_id,omitempty"`
	NextWakeUp    *time.Time    `json:"next_wake_up,omitempty"`
	CooldownUntil *time.Time    `json:"cooldown_until,omitempty"`
	Config        config.Battle `json:"config"`
}

// Status reports guards, the next timer and the shared cooldown
func (m *Manager) Status(ctx context.Context) (Status, error) {
	m.timerMu.Lock()
	status := Status{
		Running:       !m.stopped,
		ArmedBattleID: m.armedFor,
	}
	if !m.nextWake.IsZero() {
		wake := m.nextWake
		status.NextWakeUp = &wake
	}
	m.timerMu.Unlock()

	status.Generating = m.generating.Load()
	status.Completing = m.completing.Load()
	status.Config = m.GetConfig()

	until, err := m.cooldowns.Get(ctx)
	if err != nil {
		return status, fmt.Errorf("failed to read cooldown: %w", err)
	}
	if cooldown.Active(until, m.now()) {
		status.CooldownUntil = until
	}
	return status, nil
}

func (m *Manager) publish(eventType types.EventType, data interface{}) {
	if m.events != nil {
		m.events.Publish(eventType, data)
	}
}

func (m *Manager) publishStatus(message string, statusType types.StatusType) {
	m.publish(types.EventStatusUpdate, events.StatusUpdate{Message: message, Type: statusType})
}
