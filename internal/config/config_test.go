package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "DATA_DIR", "BATTLE_DURATION_HOURS", "BATTLE_MAX_PARTICIPANTS", "BATTLE_WIN_BONUS",
	"TOPIC_COOLDOWN", "COMPLETION_RETRY_DELAY", "TOPIC_SOURCE", "JUDGE_MODE", "JUDGE_URL",
	"JUDGE_TIMEOUT", "WORKER_INTERVAL", "ALLOWED_ORIGINS",
}

// clearEnv blanks every key Load reads so the host environment cannot leak in
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultBattle(), cfg.Battle)
	assert.Equal(t, time.Minute, cfg.TopicCooldown)
	assert.Equal(t, 30*time.Second, cfg.CompletionRetryDelay)
	assert.Equal(t, TopicSourceOpenAI, cfg.TopicSource)
	assert.Equal(t, JudgeModeLLM, cfg.JudgeMode)
	assert.True(t, cfg.NeedsOpenAI())
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("BATTLE_DURATION_HOURS", "0.25")
	t.Setenv("BATTLE_MAX_PARTICIPANTS", "10")
	t.Setenv("BATTLE_WIN_BONUS", "0")
	t.Setenv("TOPIC_COOLDOWN", "90s")
	t.Setenv("TOPIC_SOURCE", "STATIC")
	t.Setenv("JUDGE_MODE", "likes")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, ,http://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 0.25, cfg.Battle.DurationHours)
	assert.Equal(t, 15*time.Minute, cfg.Battle.Duration())
	assert.Equal(t, 10, cfg.Battle.MaxParticipants)
	assert.Equal(t, 0, cfg.Battle.WinBonus)
	assert.Equal(t, 90*time.Second, cfg.TopicCooldown)
	assert.Equal(t, TopicSourceStatic, cfg.TopicSource)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.False(t, cfg.NeedsOpenAI())
}

func TestLoadCollectsProblems(t *testing.T) {
	clearEnv(t)
	t.Setenv("BATTLE_DURATION_HOURS", "-1")
	t.Setenv("BATTLE_MAX_PARTICIPANTS", "many")
	t.Setenv("TOPIC_COOLDOWN", "soon")
	t.Setenv("JUDGE_MODE", "remote")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BATTLE_DURATION_HOURS")
	assert.Contains(t, err.Error(), "BATTLE_MAX_PARTICIPANTS")
	assert.Contains(t, err.Error(), "TOPIC_COOLDOWN")
	assert.Contains(t, err.Error(), "JUDGE_URL")
}

func TestBattleValidate(t *testing.T) {
	assert.NoError(t, DefaultBattle().Validate())
	assert.Error(t, Battle{DurationHours: 0, MaxParticipants: 1}.Validate())
	assert.Error(t, Battle{DurationHours: 1, MaxParticipants: 0}.Validate())
	assert.Error(t, Battle{DurationHours: 1, MaxParticipants: 1, WinBonus: -5}.Validate())
}

func TestRuntimeStore(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "runtime_test")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	path := filepath.Join(tempDir, "nested", "runtime.json")

	// Missing file is created with defaults
	store, err := NewRuntimeStore(path, DefaultBattle())
	require.NoError(t, err)
	assert.Equal(t, DefaultBattle(), store.Battle())
	_, err = os.Stat(path)
	require.NoError(t, err)

	updated := Battle{DurationHours: 2, MaxParticipants: 50, WinBonus: 25}
	require.NoError(t, store.Save(updated))
	assert.Equal(t, updated, store.Battle())

	// Invalid values are rejected and not persisted
	assert.Error(t, store.Save(Battle{DurationHours: -1, MaxParticipants: 1}))
	assert.Equal(t, updated, store.Battle())

	// A new store reads what was saved, ignoring the defaults
	reloaded, err := NewRuntimeStore(path, DefaultBattle())
	require.NoError(t, err)
	assert.Equal(t, updated, reloaded.Battle())
}

func TestRuntimeStoreRejectsCorruptFile(t *testing.T) {
	tempFile, err := os.CreateTemp("", "runtime_test.json")
	require.NoError(t, err)
	defer os.Remove(tempFile.Name())

	_, err = tempFile.WriteString("{not json")
	require.NoError(t, err)
	tempFile.Close()

	_, err = NewRuntimeStore(tempFile.Name(), DefaultBattle())
	assert.Error(t, err)
}
