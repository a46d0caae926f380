package main

import (
	"context"
	"fmt"
	"time"

	"github.com/neo/battlearena/internal/config"
	"github.com/neo/battlearena/internal/cooldown"
	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/judging"
	"github.com/neo/battlearena/internal/logging"
	"github.com/neo/battlearena/internal/topic"
	"github.com/redis/go-redis/v9"
)

// newCooldownStore shares the cooldown through redis when REDIS_URL is set
// and falls back to the database otherwise. The returned close func is
// never nil.
func newCooldownStore(ctx context.Context, cfg *config.Config, db *database.Database) (cooldown.Store, func(), error) {
	if cfg.RedisURL == "" {
		return cooldown.NewDatabaseStore(db), func() {}, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := cooldown.NewRedisClient(pingCtx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	logging.Info("Using redis for the topic cooldown")
	return cooldown.NewRedisStore(client, ""), func() { closeRedis(client) }, nil
}

func closeRedis(client *redis.Client) {
	if err := client.Close(); err != nil {
		logging.Warn("Failed to close redis client", map[string]interface{}{"error": err.Error()})
	}
}

func newTopicProvider(cfg *config.Config, db *database.Database) (topic.Provider, error) {
	switch cfg.TopicSource {
	case config.TopicSourceStatic:
		return topic.NewStaticProvider(nil, db), nil
	case config.TopicSourceOpenAI:
		provider, err := topic.NewOpenAIProvider(topic.OpenAIConfig{
			APIKey: cfg.OpenAIKey,
			Model:  cfg.OpenAIModel,
		}, db)
		if err != nil {
			return nil, err
		}
		return provider, nil
	}
	return nil, fmt.Errorf("unknown topic source %q", cfg.TopicSource)
}

// newJudges returns the judge used at completion and the one served on
// /api/judge. In remote mode the process never judges its own battles but
// can still serve as someone else's judging worker.
func newJudges(cfg *config.Config) (completion judging.Judge, local judging.Judge, err error) {
	local = judging.LikesJudge{}
	if cfg.OpenAIKey != "" {
		llm, err := judging.NewLLMJudge(cfg.OpenAIKey, cfg.OpenAIModel)
		if err != nil {
			return nil, nil, err
		}
		local = llm
	}

	switch cfg.JudgeMode {
	case config.JudgeModeLikes:
		return judging.LikesJudge{}, local, nil
	case config.JudgeModeLLM:
		if _, ok := local.(*judging.LLMJudge); !ok {
			return nil, nil, fmt.Errorf("JUDGE_MODE llm needs OPENAI_API_KEY")
		}
		return local, local, nil
	case config.JudgeModeRemote:
		return judging.NewRemoteJudge(cfg.JudgeURL, cfg.AdminToken, cfg.JudgeTimeout), local, nil
	}
	return nil, nil, fmt.Errorf("unknown judge mode %q", cfg.JudgeMode)
}
