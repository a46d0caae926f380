package battle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo/battlearena/internal/cooldown"
	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/events"
	"github.com/neo/battlearena/internal/logging"
	"github.com/neo/battlearena/internal/metrics"
	"github.com/neo/battlearena/internal/topic"
	"github.com/neo/battlearena/internal/types"
)

// createNewBattle fetches a topic and persists a new ACTIVE battle. It
// performs no writes and no topic call while a cooldown is active, and
// treats a concurrent insert by another caller as a no-op.
func (m *Manager) createNewBattle(ctx context.Context) (*database.Battle, error) {
	if !m.generating.CompareAndSwap(false, true) {
		metrics.GuardSkips.WithLabelValues("generating").Inc()
		return nil, ErrGenerationInProgress
	}
	defer m.generating.Store(false)

	ctx, cancel := m.detach(ctx)
	defer cancel()

	until, err := m.cooldowns.Get(ctx)
	if err != nil {
		logging.Warn("Failed to read topic cooldown, continuing without it", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if cooldown.Active(until, m.now()) {
		metrics.CooldownSkips.Inc()
		logging.LogBattleEvent("creation_skipped_cooldown", "", map[string]interface{}{
			"cooldown_until": until,
		})
		return nil, ErrCoolingDown
	}

	// Another replica may have filled the gap while we waited for the guard
	current, err := m.db.GetCurrentBattle(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active battle: %w", err)
	}
	if current != nil {
		return nil, ErrBattleInProgress
	}

	t, err := m.topics.GetDailyTopic(ctx)
	if err != nil {
		if topic.IsRateLimit(err) {
			metrics.TopicFailures.WithLabelValues("rate_limit").Inc()
			m.setCooldown(ctx)
			return nil, fmt.Errorf("%w: %v", ErrCoolingDown, err)
		}
		metrics.TopicFailures.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrNoTopic, err)
	}

	cfg := m.GetConfig()
	// Anchored after the topic call so generation latency does not eat
	// into the window
	start := m.now()
	battle := &database.Battle{
		ID:              uuid.New().String(),
		Title:           t.Title,
		Description:     t.Description,
		Category:        t.Category,
		Source:          t.Source,
		SourceURL:       t.SourceURL,
		SupportPoints:   t.SupportPoints,
		OpposePoints:    t.OpposePoints,
		StartTime:       start,
		EndTime:         start.Add(cfg.Duration()),
		DurationHours:   cfg.DurationHours,
		MaxParticipants: cfg.MaxParticipants,
		Status:          types.BattleStatusActive,
		CreatedAt:       start,
	}

	if err := m.db.CreateBattle(ctx, battle); err != nil {
		if errors.Is(err, database.ErrActiveBattleExists) {
			logging.LogBattleEvent("creation_lost_race", battle.ID, map[string]interface{}{
				"title": battle.Title,
			})
			return nil, ErrBattleInProgress
		}
		return nil, fmt.Errorf("failed to persist battle: %w", err)
	}

	metrics.BattlesCreated.Inc()
	logging.LogBattleEvent("battle_created", battle.ID, map[string]interface{}{
		"title":    battle.Title,
		"end_time": battle.EndTime,
		"hours":    battle.DurationHours,
	})

	m.publish(types.EventBattleStarted, events.BattleStarted{
		BattleID:    battle.ID,
		Title:       battle.Title,
		Description: battle.Description,
		Category:    battle.Category,
		Source:      battle.Source,
		SourceURL:   battle.SourceURL,
		EndTime:     battle.EndTime,
	})
	m.scheduleExpiry(battle)

	return battle, nil
}

// setCooldown starts a new cooldown window unless one is already running.
// An active cooldown is never shortened or extended.
func (m *Manager) setCooldown(ctx context.Context) {
	now := m.now()
	existing, err := m.cooldowns.Get(ctx)
	if err != nil {
		logging.Warn("Failed to read topic cooldown before setting it", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if cooldown.Active(existing, now) {
		return
	}

	until := now.Add(m.cooldownWindow)
	if err := m.cooldowns.Set(ctx, until); err != nil {
		logging.Error("Failed to persist topic cooldown", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	logging.LogBattleEvent("cooldown_set", "", map[string]interface{}{
		"until": until,
	})
}

// logCreateFailure logs a creation attempt that produced no battle. Guard
// and already-active outcomes are routine and logged at debug.
func logCreateFailure(trigger string, err error) {
	details := map[string]interface{}{
		"trigger": trigger,
		"error":   err.Error(),
	}
	switch {
	case errors.Is(err, ErrGenerationInProgress), errors.Is(err, ErrBattleInProgress):
		logging.Debug("Battle creation skipped", details)
	case errors.Is(err, ErrCoolingDown), errors.Is(err, ErrNoTopic):
		logging.Warn("Battle creation deferred", details)
	default:
		logging.Error("Battle creation failed", details)
	}
}
