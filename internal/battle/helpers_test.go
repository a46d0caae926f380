package battle

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/neo/battlearena/internal/config"
	"github.com/neo/battlearena/internal/cooldown"
	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/events"
	"github.com/neo/battlearena/internal/judging"
	"github.com/neo/battlearena/internal/topic"
	"github.com/neo/battlearena/internal/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeTimer struct {
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
	s       *fakeScheduler
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{delay: d, fn: f, s: s}
	s.timers = append(s.timers, t)
	return t
}

// pending returns timers that are neither stopped nor fired
func (s *fakeScheduler) pending() []*fakeTimer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs a timer callback the way time.AfterFunc would
func (s *fakeScheduler) fire(t *fakeTimer) {
	s.mu.Lock()
	t.fired = true
	s.mu.Unlock()
	t.fn()
}

type mockTopics struct {
	mock.Mock
}

func (m *mockTopics) GetDailyTopic(ctx context.Context) (*topic.Topic, error) {
	args := m.Called(ctx)
	t, _ := args.Get(0).(*topic.Topic)
	return t, args.Error(1)
}

type mockJudge struct {
	mock.Mock
}

func (m *mockJudge) Judge(ctx context.Context, battle *database.Battle, casts []*database.Cast) (*judging.Result, error) {
	args := m.Called(ctx, battle, casts)
	r, _ := args.Get(0).(*judging.Result)
	return r, args.Error(1)
}

type recordingSink struct {
	saved []config.Battle
	err   error
}

func (s *recordingSink) Save(b config.Battle) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, b)
	return nil
}

func sampleTopic(title string) *topic.Topic {
	return &topic.Topic{
		Title:         title,
		Description:   "About " + title,
		Category:      "tech",
		Source:        "test",
		SupportPoints: []string{"pro a", "pro b"},
		OpposePoints:  []string{"con a", "con b"},
	}
}

type harness struct {
	db        *database.Database
	clock     *fakeClock
	scheduler *fakeScheduler
	topics    *mockTopics
	judge     *mockJudge
	events    *events.Broadcaster
	sub       *events.Subscription
	manager   *Manager
}

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "battle_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	db, err := database.New(tempDir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig() config.Battle {
	return config.Battle{DurationHours: 24, MaxParticipants: 10, WinBonus: 100}
}

func newHarness(t *testing.T, cfg config.Battle, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		db:        newTestDB(t),
		clock:     newFakeClock(),
		scheduler: &fakeScheduler{},
		topics:    new(mockTopics),
		judge:     new(mockJudge),
		events:    events.NewBroadcaster(),
	}
	h.sub = h.events.Subscribe(128)

	all := append([]Option{
		WithClock(h.clock.Now),
		WithScheduler(h.scheduler),
		WithCooldownWindow(time.Minute),
		WithRetryDelay(30 * time.Second),
	}, opts...)

	m, err := New(h.db, h.topics, h.judge, h.events, cooldown.NewDatabaseStore(h.db), cfg, all...)
	require.NoError(t, err)
	h.manager = m
	t.Cleanup(m.Stop)
	return h
}

// start flips the manager to running without running a reconciliation
func (h *harness) start() {
	h.manager.timerMu.Lock()
	h.manager.stopped = false
	h.manager.timerMu.Unlock()
}

// drain returns every event buffered so far
func (h *harness) drain() []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-h.sub.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

// lifecycle filters events down to BATTLE_STARTED and BATTLE_ENDED
func lifecycle(evs []events.Event) []types.EventType {
	var out []types.EventType
	for _, ev := range evs {
		if ev.Type == types.EventBattleStarted || ev.Type == types.EventBattleEnded {
			out = append(out, ev.Type)
		}
	}
	return out
}

func (h *harness) battles(t *testing.T, status types.BattleStatus) []*database.Battle {
	t.Helper()
	battles, _, err := h.db.ListBattles(context.Background(), database.BattleFilter{Status: status, Limit: 100})
	require.NoError(t, err)
	return battles
}

// seedBattle inserts an ACTIVE battle that started at start and lasts hours
func (h *harness) seedBattle(t *testing.T, id string, start time.Time, hours float64) *database.Battle {
	t.Helper()
	b := &database.Battle{
		ID:              id,
		Title:           "Seeded " + id,
		Description:     "seeded",
		SupportPoints:   []string{"a", "b"},
		OpposePoints:    []string{"c", "d"},
		StartTime:       start,
		EndTime:         start.Add(time.Duration(hours * float64(time.Hour))),
		DurationHours:   hours,
		MaxParticipants: 10,
		CreatedAt:       start,
	}
	require.NoError(t, h.db.CreateBattle(context.Background(), b))
	return b
}
