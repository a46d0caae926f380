package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/neo/battlearena/internal/config"
	"github.com/neo/battlearena/internal/cooldown"
	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/judging"
	"github.com/neo/battlearena/internal/topic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJudges(t *testing.T) {
	completion, local, err := newJudges(&config.Config{JudgeMode: config.JudgeModeLikes})
	require.NoError(t, err)
	assert.IsType(t, judging.LikesJudge{}, completion)
	assert.IsType(t, judging.LikesJudge{}, local)

	completion, local, err = newJudges(&config.Config{
		JudgeMode: config.JudgeModeRemote,
		JudgeURL:  "http://judge.internal/api/judge",
	})
	require.NoError(t, err)
	assert.IsType(t, &judging.RemoteJudge{}, completion)
	assert.IsType(t, judging.LikesJudge{}, local)

	_, _, err = newJudges(&config.Config{JudgeMode: config.JudgeModeLLM})
	assert.Error(t, err)

	_, _, err = newJudges(&config.Config{JudgeMode: "coin-flip"})
	assert.Error(t, err)
}

func TestNewTopicProvider(t *testing.T) {
	db, err := database.New(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	provider, err := newTopicProvider(&config.Config{TopicSource: config.TopicSourceStatic}, db)
	require.NoError(t, err)
	assert.IsType(t, &topic.StaticProvider{}, provider)

	_, err = newTopicProvider(&config.Config{TopicSource: config.TopicSourceOpenAI}, db)
	assert.Error(t, err, "openai source needs a key")
}

func TestNewCooldownStore(t *testing.T) {
	db, err := database.New(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	store, closeStore, err := newCooldownStore(context.Background(), &config.Config{}, db)
	require.NoError(t, err)
	closeStore()
	assert.IsType(t, &cooldown.DatabaseStore{}, store)

	mr := miniredis.RunT(t)
	store, closeStore, err = newCooldownStore(context.Background(), &config.Config{RedisURL: "redis://" + mr.Addr()}, db)
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &cooldown.RedisStore{}, store)

	_, _, err = newCooldownStore(context.Background(), &config.Config{RedisURL: "://bad"}, db)
	assert.Error(t, err)
}
