package battle

import (
	"time"

	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/logging"
)

// Timer is a cancellable one-shot wake-up
type Timer interface {
	Stop() bool
}

// Scheduler arms one-shot timers
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// clearTimersLocked stops every pending timer. Caller holds timerMu.
func (m *Manager) clearTimersLocked() {
	for _, t := range m.timers {
		t.Stop()
	}
	m.timers = nil
	m.armedFor = ""
	m.nextWake = time.Time{}
}

// arm clears pending timers and schedules one reconciliation after delay.
// battleID records which battle the wake-up belongs to; empty for retries.
func (m *Manager) arm(battleID string, delay time.Duration, reason string) {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()

	if m.stopped {
		return
	}
	if delay < 0 {
		delay = 0
	}

	m.clearTimersLocked()
	m.timers = append(m.timers, m.scheduler.AfterFunc(delay, m.fire))
	m.armedFor = battleID
	m.nextWake = m.now().Add(delay)

	logging.LogSchedulerEvent("timer_armed", map[string]interface{}{
		"battle_id": battleID,
		"reason":    reason,
		"delay":     delay.String(),
	})
}

// scheduleExpiry arms the wake-up for b's end time
func (m *Manager) scheduleExpiry(b *database.Battle) {
	m.arm(b.ID, b.Remaining(m.now()), "expiry")
}

// scheduleRetry arms a short retry after a failed completion cycle
func (m *Manager) scheduleRetry() {
	m.arm("", m.retryDelay, "retry")
}

// isArmedFor reports whether an expiry timer is pending for battleID
func (m *Manager) isArmedFor(battleID string) bool {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	return m.armedFor == battleID && len(m.timers) > 0
}

func (m *Manager) clearTimers() {
	m.timerMu.Lock()
	defer m.timerMu.Unlock()
	m.clearTimersLocked()
}

// fire is the only timer callback. It forwards to EnsureConsistentState so
// timers never carry their own copy of the transition logic.
func (m *Manager) fire() {
	m.timerMu.Lock()
	if m.stopped {
		m.timerMu.Unlock()
		return
	}
	m.timers = nil
	m.armedFor = ""
	m.nextWake = time.Time{}
	ctx := m.baseCtx
	m.timerMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Panic in battle timer", map[string]interface{}{
				"panic": r,
			})
		}
	}()

	logging.LogSchedulerEvent("timer_fired", nil)
	if err := m.EnsureConsistentState(ctx); err != nil {
		logging.Error("Timer reconciliation failed", map[string]interface{}{
			"error": err.Error(),
		})
		m.scheduleRetry()
	}
}
