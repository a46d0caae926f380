package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/neo/battlearena/internal/auth"
	"github.com/neo/battlearena/internal/battle"
	"github.com/neo/battlearena/internal/config"
	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/events"
	"github.com/neo/battlearena/internal/judging"
	"github.com/neo/battlearena/internal/topic"
	"github.com/neo/battlearena/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAdminToken = "admin-s3cret"

var testAdminHash string

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	hash, err := auth.HashAdminToken(testAdminToken)
	if err != nil {
		fmt.Println("failed to hash admin token:", err)
		os.Exit(1)
	}
	testAdminHash = hash
	os.Exit(m.Run())
}

type failingTopics struct{}

func (failingTopics) GetDailyTopic(ctx context.Context) (*topic.Topic, error) {
	return nil, topic.ErrNoTopic
}

type testEnv struct {
	db      *database.Database
	manager *battle.Manager
	events  *events.Broadcaster
	auth    *auth.Auth
	server  *Server
}

func newTestEnv(t *testing.T, topics topic.Provider) *testEnv {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "server_test")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	db, err := database.New(tempDir)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if topics == nil {
		topics = topic.NewStaticProvider(nil, db)
	}

	broadcaster := events.NewBroadcaster()
	t.Cleanup(broadcaster.Close)

	cfg := config.Battle{DurationHours: 24, MaxParticipants: 2, WinBonus: 100}
	manager, err := battle.New(db, topics, judging.LikesJudge{}, broadcaster, nil, cfg)
	require.NoError(t, err)
	t.Cleanup(manager.Stop)

	authn := auth.New(auth.Config{JWTSecret: "test_secret", TokenDuration: time.Hour})

	srv := NewServer(Options{
		Orchestrator:   manager,
		DB:             db,
		Events:         broadcaster,
		Auth:           authn,
		Judge:          judging.LikesJudge{},
		AdminTokenHash: testAdminHash,
	})

	return &testEnv{db: db, manager: manager, events: broadcaster, auth: authn, server: srv}
}

type request struct {
	method string
	path   string
	body   interface{}
	userID string
	admin  bool
}

func (e *testEnv) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.userID != "" {
		token, err := e.auth.GenerateToken(r.userID, r.userID+"-name")
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if r.admin {
		req.Header.Set(auth.AdminHeader, testAdminToken)
	}

	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	envelope, ok := body["error"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	code, _ := envelope["error_code"].(string)
	return code
}

func TestHealthRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, request{method: "GET", path: "/health"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestMetricsRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, request{method: "GET", path: "/health"})

	w := env.do(t, request{method: "GET", path: "/metrics"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "battlearena_http_requests_total")
}

func TestCurrentBattleCreatesOnDemand(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, request{method: "GET", path: "/api/battle/current"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	b, ok := body["battle"].(map[string]interface{})
	require.True(t, ok, w.Body.String())
	assert.Equal(t, topic.DefaultCatalog[0].Title, b["title"])
	assert.Equal(t, string(types.BattleStatusActive), b["status"])
	assert.Equal(t, float64(0), body["participants"])

	// A second request finds the same battle
	again := decode(t, env.do(t, request{method: "GET", path: "/api/battle/current"}))
	assert.Equal(t, b["id"], again["battle"].(map[string]interface{})["id"])
}

func TestCurrentBattleNoneAvailable(t *testing.T) {
	env := newTestEnv(t, failingTopics{})

	w := env.do(t, request{method: "GET", path: "/api/battle/current"})

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Nil(t, body["battle"])
	assert.Equal(t, NoBattleMessage, body["message"])
}

func TestReconcileRoute(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, request{method: "POST", path: "/api/battle/reconcile"})
	assert.Equal(t, http.StatusOK, w.Code)

	current, err := env.manager.GetCurrentBattle(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, current)
}

func TestJoinAndCastFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.manager.EnsureConsistentState(context.Background()))

	// Unauthenticated
	w := env.do(t, request{method: "POST", path: "/api/battle/join"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Cast before join
	w = env.do(t, request{method: "POST", path: "/api/battle/casts", userID: "u1",
		body: gin.H{"content": "hello", "side": "SUPPORT"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "must_join", errorCode(t, w))

	w = env.do(t, request{method: "POST", path: "/api/battle/join", userID: "u1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, request{method: "POST", path: "/api/battle/join", userID: "u1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_joined", errorCode(t, w))

	w = env.do(t, request{method: "POST", path: "/api/battle/casts", userID: "u1",
		body: gin.H{"content": "hello", "side": "maybe"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_side", errorCode(t, w))

	w = env.do(t, request{method: "POST", path: "/api/battle/casts", userID: "u1",
		body: gin.H{"side": "SUPPORT"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, request{method: "POST", path: "/api/battle/casts", userID: "u1",
		body: gin.H{"content": "robots should vote", "side": "support"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	cast := decode(t, w)["cast"].(map[string]interface{})
	assert.Equal(t, "SUPPORT", cast["side"])

	w = env.do(t, request{method: "POST", path: "/api/battle/casts", userID: "u1",
		body: gin.H{"content": "again", "side": "OPPOSE"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_submitted", errorCode(t, w))

	// Max participants is two
	require.Equal(t, http.StatusCreated, env.do(t, request{method: "POST", path: "/api/battle/join", userID: "u2"}).Code)
	w = env.do(t, request{method: "POST", path: "/api/battle/join", userID: "u3"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "battle_full", errorCode(t, w))

	// Likes
	castID := cast["id"].(string)
	w = env.do(t, request{method: "POST", path: "/api/casts/" + castID + "/like", userID: "u2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(1), decode(t, w)["likes"])

	w = env.do(t, request{method: "POST", path: "/api/casts/" + castID + "/like", userID: "u2"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, request{method: "POST", path: "/api/casts/missing/like", userID: "u2"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestJoinWithoutBattle(t *testing.T) {
	env := newTestEnv(t, failingTopics{})

	w := env.do(t, request{method: "POST", path: "/api/battle/join", userID: "u1"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no_active_battle", errorCode(t, w))
}

func TestBattleHistory(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.manager.EnsureConsistentState(context.Background()))
	current, err := env.manager.GetCurrentBattle(context.Background())
	require.NoError(t, err)

	w := env.do(t, request{method: "GET", path: "/api/battles?page=1&page_size=5&status=active"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	items := body["items"].([]interface{})
	require.Len(t, items, 1)
	pagination := body["pagination"].(map[string]interface{})
	assert.Equal(t, float64(1), pagination["total_items"])
	assert.Equal(t, float64(5), pagination["page_size"])

	w = env.do(t, request{method: "GET", path: "/api/battles/" + current.ID})
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode(t, w)
	assert.Equal(t, current.ID, detail["battle"].(map[string]interface{})["id"])
	assert.Empty(t, detail["winners"])
	assert.Empty(t, detail["casts"])

	w = env.do(t, request{method: "GET", path: "/api/battles/nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	w := env.do(t, request{method: "GET", path: "/api/leaderboard"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["leaders"])

	require.NoError(t, env.manager.EnsureConsistentState(ctx))
	current, err := env.manager.GetCurrentBattle(ctx)
	require.NoError(t, err)
	_, err = env.db.UpsertUser(ctx, "u1", "alice")
	require.NoError(t, err)
	_, _, err = env.db.AwardPoints(ctx, database.WinnerAward{BattleID: current.ID, UserID: "u1", Points: 100})
	require.NoError(t, err)

	w = env.do(t, request{method: "GET", path: "/api/leaderboard?limit=5"})
	require.Equal(t, http.StatusOK, w.Code)
	leaders := decode(t, w)["leaders"].([]interface{})
	require.Len(t, leaders, 1)
	assert.Equal(t, float64(100), leaders[0].(map[string]interface{})["points"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, request{method: "GET", path: "/api/admin/config"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest("GET", "/api/admin/config", nil)
	req.Header.Set(auth.AdminHeader, "guess")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminConfig(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, request{method: "GET", path: "/api/admin/config", admin: true})
	require.Equal(t, http.StatusOK, w.Code)
	cfg := decode(t, w)["config"].(map[string]interface{})
	assert.Equal(t, float64(24), cfg["duration_hours"])

	w = env.do(t, request{method: "PATCH", path: "/api/admin/config", admin: true, body: gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, request{method: "PATCH", path: "/api/admin/config", admin: true, body: gin.H{"duration_hours": -3}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, request{method: "PATCH", path: "/api/admin/config", admin: true, body: gin.H{"max_participants": 7}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 7, env.manager.GetConfig().MaxParticipants)

	// The update reconciled, so a battle now exists
	current, err := env.manager.GetCurrentBattle(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, current)
}

func TestAdminGenerateAndStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.manager.Start(context.Background()))

	w := env.do(t, request{method: "POST", path: "/api/admin/battle/generate", admin: true})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "battle_in_progress", errorCode(t, w))

	w = env.do(t, request{method: "GET", path: "/api/admin/status", admin: true})
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)["status"].(map[string]interface{})
	assert.Equal(t, true, status["running"])
	assert.NotEmpty(t, status["armed_battle_id"])
}

func TestAdminGenerateWithoutTopic(t *testing.T) {
	env := newTestEnv(t, failingTopics{})

	w := env.do(t, request{method: "POST", path: "/api/admin/battle/generate", admin: true})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "no_topic", errorCode(t, w))
}

func TestJudgeRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	b := &database.Battle{ID: "b1", Title: "T"}
	now := time.Now()
	casts := []*database.Cast{
		{ID: "c1", BattleID: "b1", UserID: "u1", Side: types.SideSupport, Likes: 1, CreatedAt: now},
		{ID: "c2", BattleID: "b1", UserID: "u2", Side: types.SideOppose, Likes: 4, CreatedAt: now},
	}

	w := env.do(t, request{method: "POST", path: "/api/judge", admin: true, body: judging.Request{Battle: b, Casts: casts}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var result judging.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	require.NotNil(t, result.Winner)
	assert.Equal(t, "c2", result.Winner.CastID)

	w = env.do(t, request{method: "POST", path: "/api/judge", admin: true, body: judging.Request{Battle: b}})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Nil(t, result.Winner)

	w = env.do(t, request{method: "POST", path: "/api/judge", admin: true, body: gin.H{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// The remote judge client and the judge route speak the same protocol
func TestRemoteJudgeAgainstJudgeRoute(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	remote := judging.NewRemoteJudge(ts.URL+"/api/judge", testAdminToken, 5*time.Second)
	result, err := remote.Judge(context.Background(), &database.Battle{ID: "b1"}, []*database.Cast{
		{ID: "c1", UserID: "u1", Likes: 2, CreatedAt: time.Now()},
	})
	require.NoError(t, err)
	require.NotNil(t, result.Winner)
	assert.Equal(t, "u1", result.Winner.UserID)
}

func TestBattleWebSocket(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/battle"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.events.SubscriberCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.events.Publish(types.EventStatusUpdate, events.StatusUpdate{Message: "hi", Type: types.StatusInfo})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got struct {
		Type types.EventType    `json:"type"`
		Data events.StatusUpdate `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, types.EventStatusUpdate, got.Type)
	assert.Equal(t, "hi", got.Data.Message)

	// Closing the broadcaster ends the stream
	env.events.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestStatusForError(t *testing.T) {
	testCases := []struct {
		err    error
		status int
		code   string
	}{
		{battle.ErrNoActiveBattle, http.StatusNotFound, "no_active_battle"},
		{fmt.Errorf("wrapped: %w", database.ErrNotFound), http.StatusNotFound, "not_found"},
		{battle.ErrBattleFull, http.StatusConflict, "battle_full"},
		{battle.ErrMustJoin, http.StatusForbidden, "must_join"},
		{fmt.Errorf("%w: 429", battle.ErrCoolingDown), http.StatusTooManyRequests, "cooling_down"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range testCases {
		status, code := statusForError(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
