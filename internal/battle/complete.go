package battle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/events"
	"github.com/neo/battlearena/internal/judging"
	"github.com/neo/battlearena/internal/logging"
	"github.com/neo/battlearena/internal/metrics"
	"github.com/neo/battlearena/internal/types"
)

// Completion outcomes, used as metric labels
const (
	outcomeWinner        = "winner"
	outcomeNoWinner      = "no_winner"
	outcomeNoSubmissions = "no_submissions"
	outcomeFallback      = "fallback"
)

// HandleBattleCompletion judges and closes battleID, pays the winner, and
// starts the next battle. A call made while another completion is running
// returns at once. Errors are logged, never returned.
func (m *Manager) HandleBattleCompletion(ctx context.Context, battleID string) {
	m.completeBattle(ctx, battleID, "")
}

// completeBattle is the completion cycle. An empty reason means the battle
// ran its course and is judged; any other reason closes it without winners.
func (m *Manager) completeBattle(ctx context.Context, battleID, reason string) {
	if !m.completing.CompareAndSwap(false, true) {
		metrics.GuardSkips.WithLabelValues("completing").Inc()
		return
	}
	defer m.completing.Store(false)

	ctx, cancel := m.detach(ctx)
	defer cancel()

	started := time.Now()
	defer metrics.ObserveCompletion(started)

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Panic during battle completion", map[string]interface{}{
				"battle_id": battleID,
				"panic":     r,
			})
			m.scheduleRetry()
		}
	}()

	battle, err := m.db.GetBattle(ctx, battleID)
	if errors.Is(err, database.ErrNotFound) {
		logging.Debug("Battle to complete no longer exists", map[string]interface{}{"battle_id": battleID})
		return
	}
	if err != nil {
		logging.Error("Failed to load battle for completion", map[string]interface{}{
			"battle_id": battleID,
			"error":     err.Error(),
		})
		m.scheduleRetry()
		return
	}
	if battle.Status != types.BattleStatusActive {
		return
	}

	m.publish(types.EventBattleEnded, events.BattleEnded{
		BattleID: battle.ID,
		Title:    battle.Title,
		Reason:   reason,
	})

	var winners []database.WinnerInput
	outcome := reason
	if reason == "" {
		m.publishStatus("Judging in progress...", types.StatusInfo)
		winners, outcome = m.pickWinners(ctx, battle)
	}

	completed, err := m.db.CompleteBattle(ctx, battle.ID, winners)
	if err != nil && !isAlreadyClosed(err) && len(winners) > 0 {
		logging.Warn("Recording winners failed, completing without winners", map[string]interface{}{
			"battle_id": battle.ID,
			"error":     err.Error(),
		})
		winners = nil
		outcome = outcomeFallback
		completed, err = m.db.CompleteBattle(ctx, battle.ID, nil)
	}
	if isAlreadyClosed(err) {
		logging.LogBattleEvent("completion_lost_race", battle.ID, nil)
		return
	}
	if err != nil {
		logging.Error("Failed to complete battle", map[string]interface{}{
			"battle_id": battle.ID,
			"error":     err.Error(),
		})
		m.scheduleRetry()
		return
	}

	metrics.BattlesCompleted.WithLabelValues(outcome).Inc()
	logging.LogBattleEvent("battle_completed", completed.ID, map[string]interface{}{
		"outcome": outcome,
		"winners": len(winners),
	})

	for _, w := range winners {
		m.award(ctx, battle.ID, w.UserID)
	}

	m.publishStatus("Generating new battle...", types.StatusInfo)
	m.clearTimers()

	if _, err := m.createNewBattle(ctx); err != nil {
		logCreateFailure("completion", err)
		if !errors.Is(err, ErrGenerationInProgress) && !errors.Is(err, ErrBattleInProgress) {
			m.publishStatus("Could not start a new battle yet, retrying shortly", types.StatusWarning)
			m.scheduleRetry()
		}
	}
}

// pickWinners asks the judge for a verdict. Any failure resolves to no
// winner so the battle always closes.
func (m *Manager) pickWinners(ctx context.Context, battle *database.Battle) ([]database.WinnerInput, string) {
	casts, err := m.db.GetCastsForBattle(ctx, battle.ID)
	if err != nil {
		logging.Error("Failed to load casts, completing without winners", map[string]interface{}{
			"battle_id": battle.ID,
			"error":     err.Error(),
		})
		return nil, outcomeFallback
	}
	if len(casts) == 0 {
		return nil, outcomeNoSubmissions
	}

	result, err := m.judge.Judge(ctx, battle, casts)
	if err != nil {
		logging.Warn("Judging failed, completing without winners", map[string]interface{}{
			"battle_id": battle.ID,
			"error":     err.Error(),
		})
		return nil, outcomeNoWinner
	}

	cast := matchSelection(result, casts)
	if cast == nil {
		return nil, outcomeNoWinner
	}

	bonus := m.GetConfig().WinBonus
	reason := ""
	if result.Winner != nil {
		reason = result.Winner.Reason
	}
	return []database.WinnerInput{{
		UserID:   cast.UserID,
		CastID:   cast.ID,
		Position: 1,
		Prize:    fmt.Sprintf("%d points", bonus),
		Reason:   reason,
	}}, outcomeWinner
}

// matchSelection resolves a verdict against the battle's own casts, so a
// judge cannot name a user who did not submit
func matchSelection(result *judging.Result, casts []*database.Cast) *database.Cast {
	if result == nil || result.Winner == nil {
		return nil
	}
	for _, c := range casts {
		if result.Winner.CastID != "" && c.ID == result.Winner.CastID {
			return c
		}
	}
	if result.Winner.CastID == "" {
		for _, c := range casts {
			if c.UserID == result.Winner.UserID {
				return c
			}
		}
	}
	return nil
}

// award applies the win bonus through the ledger and announces the new
// balance only when the entry was new
func (m *Manager) award(ctx context.Context, battleID, userID string) {
	bonus := m.GetConfig().WinBonus
	applied, total, err := m.db.AwardPoints(ctx, database.WinnerAward{
		BattleID: battleID,
		UserID:   userID,
		Points:   bonus,
	})
	if err != nil {
		logging.Error("Failed to award points", map[string]interface{}{
			"battle_id": battleID,
			"user_id":   userID,
			"error":     err.Error(),
		})
		return
	}
	if !applied {
		return
	}

	metrics.PointsAwarded.Add(float64(bonus))
	logging.LogBattleEvent("points_awarded", battleID, map[string]interface{}{
		"user_id": userID,
		"points":  bonus,
		"total":   total,
	})
	m.publish(types.EventLeaderboardUpdate, events.LeaderboardUpdate{
		Winner:         userID,
		NewTotalPoints: total,
	})
}

func isAlreadyClosed(err error) bool {
	return errors.Is(err, database.ErrBattleNotActive) || errors.Is(err, database.ErrNotFound)
}
