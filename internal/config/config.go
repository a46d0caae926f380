// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// DefaultPort is the HTTP listen port
	DefaultPort = "8080"
	// DefaultDataDir holds the sqlite database and runtime config
	DefaultDataDir = "data"
	// DefaultDurationHours is the length of one battle
	DefaultDurationHours = 24.0
	// DefaultMaxParticipants caps joins per battle
	DefaultMaxParticipants = 100
	// DefaultWinBonus is the points paid to a battle winner
	DefaultWinBonus = 100
	// DefaultTopicCooldown is how long topic generation backs off after a rate limit
	DefaultTopicCooldown = time.Minute
	// DefaultCompletionRetryDelay is the delay before retrying a failed next-battle creation
	DefaultCompletionRetryDelay = 30 * time.Second
	// DefaultJudgeTimeout bounds one remote judging call
	DefaultJudgeTimeout = 60 * time.Second
	// DefaultWorkerInterval is how often the external worker pokes the server
	DefaultWorkerInterval = time.Minute
	// DefaultOpenAIModel is the chat model used for topics and judging
	DefaultOpenAIModel = "gpt-4o-mini"
)

// Topic sources
const (
	TopicSourceOpenAI = "openai"
	TopicSourceStatic = "static"
)

// Judge modes
const (
	JudgeModeLLM    = "llm"
	JudgeModeLikes  = "likes"
	JudgeModeRemote = "remote"
)

// Battle holds the tunables an operator may change at runtime
type Battle struct {
	DurationHours   float64 `json:"duration_hours"`
	MaxParticipants int     `json:"max_participants"`
	WinBonus        int     `json:"win_bonus"`
}

// Validate checks the values are usable
func (b Battle) Validate() error {
	var problems []string
	if b.DurationHours <= 0 {
		problems = append(problems, fmt.Sprintf("duration_hours must be positive, got %v", b.DurationHours))
	}
	if b.MaxParticipants <= 0 {
		problems = append(problems, fmt.Sprintf("max_participants must be positive, got %d", b.MaxParticipants))
	}
	if b.WinBonus < 0 {
		problems = append(problems, fmt.Sprintf("win_bonus must not be negative, got %d", b.WinBonus))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// Duration returns DurationHours as a time.Duration
func (b Battle) Duration() time.Duration {
	return time.Duration(b.DurationHours * float64(time.Hour))
}

// DefaultBattle returns the built-in battle tunables
func DefaultBattle() Battle {
	return Battle{
		DurationHours:   DefaultDurationHours,
		MaxParticipants: DefaultMaxParticipants,
		WinBonus:        DefaultWinBonus,
	}
}

// Config captures all process settings
type Config struct {
	Port                 string
	DataDir              string
	Battle               Battle
	TopicCooldown        time.Duration
	CompletionRetryDelay time.Duration

	OpenAIKey   string
	OpenAIModel string
	TopicSource string

	JudgeMode    string
	JudgeURL     string
	JudgeTimeout time.Duration

	RedisURL       string
	JWTSecret      string
	AdminTokenHash string
	AdminToken     string
	AllowedOrigins []string

	LogLevel          string
	LogFile           string
	RuntimeConfigPath string

	WorkerInterval  time.Duration
	WorkerTargetURL string
}

// Load reads a .env file if present, then the environment, applying
// defaults and collecting every invalid override into one error
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getString("DATA_DIR", DefaultDataDir)
	cfg := &Config{
		Port:                 getString("PORT", DefaultPort),
		DataDir:              dataDir,
		Battle:               DefaultBattle(),
		TopicCooldown:        DefaultTopicCooldown,
		CompletionRetryDelay: DefaultCompletionRetryDelay,
		OpenAIKey:            strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:          getString("OPENAI_MODEL", DefaultOpenAIModel),
		TopicSource:          strings.ToLower(getString("TOPIC_SOURCE", TopicSourceOpenAI)),
		JudgeMode:            strings.ToLower(getString("JUDGE_MODE", JudgeModeLLM)),
		JudgeURL:             strings.TrimSpace(os.Getenv("JUDGE_URL")),
		JudgeTimeout:         DefaultJudgeTimeout,
		RedisURL:             strings.TrimSpace(os.Getenv("REDIS_URL")),
		JWTSecret:            strings.TrimSpace(os.Getenv("JWT_SECRET")),
		AdminTokenHash:       strings.TrimSpace(os.Getenv("ADMIN_TOKEN_HASH")),
		AdminToken:           strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),
		AllowedOrigins:       parseList(os.Getenv("ALLOWED_ORIGINS")),
		LogLevel:             getString("LOG_LEVEL", "info"),
		LogFile:              strings.TrimSpace(os.Getenv("LOG_FILE")),
		RuntimeConfigPath:    getString("RUNTIME_CONFIG_PATH", dataDir+"/runtime.json"),
		WorkerInterval:       DefaultWorkerInterval,
		WorkerTargetURL:      getString("WORKER_TARGET_URL", "http://localhost:"+DefaultPort),
	}

	var problems []string

	if raw := strings.TrimSpace(os.Getenv("BATTLE_DURATION_HOURS")); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("BATTLE_DURATION_HOURS must be a positive number, got %q", raw))
		} else {
			cfg.Battle.DurationHours = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLE_MAX_PARTICIPANTS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			problems = append(problems, fmt.Sprintf("BATTLE_MAX_PARTICIPANTS must be a positive integer, got %q", raw))
		} else {
			cfg.Battle.MaxParticipants = value
		}
	}

	if raw := strings.TrimSpace(os.Getenv("BATTLE_WIN_BONUS")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value < 0 {
			problems = append(problems, fmt.Sprintf("BATTLE_WIN_BONUS must be a non-negative integer, got %q", raw))
		} else {
			cfg.Battle.WinBonus = value
		}
	}

	parseDuration := func(key string, target *time.Duration) {
		raw := strings.TrimSpace(os.Getenv(key))
		if raw == "" {
			return
		}
		duration, err := time.ParseDuration(raw)
		if err != nil || duration <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be a positive duration, got %q", key, raw))
			return
		}
		*target = duration
	}
	parseDuration("TOPIC_COOLDOWN", &cfg.TopicCooldown)
	parseDuration("COMPLETION_RETRY_DELAY", &cfg.CompletionRetryDelay)
	parseDuration("JUDGE_TIMEOUT", &cfg.JudgeTimeout)
	parseDuration("WORKER_INTERVAL", &cfg.WorkerInterval)

	switch cfg.TopicSource {
	case TopicSourceOpenAI, TopicSourceStatic:
	default:
		problems = append(problems, fmt.Sprintf("TOPIC_SOURCE must be %q or %q, got %q", TopicSourceOpenAI, TopicSourceStatic, cfg.TopicSource))
	}

	switch cfg.JudgeMode {
	case JudgeModeLLM, JudgeModeLikes:
	case JudgeModeRemote:
		if cfg.JudgeURL == "" {
			problems = append(problems, "JUDGE_URL is required when JUDGE_MODE is remote")
		}
	default:
		problems = append(problems, fmt.Sprintf("JUDGE_MODE must be one of llm, likes, remote, got %q", cfg.JudgeMode))
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}

	return cfg, nil
}

// NeedsOpenAI reports whether any configured component calls OpenAI
func (c *Config) NeedsOpenAI() bool {
	return c.TopicSource == TopicSourceOpenAI || c.JudgeMode == JudgeModeLLM
}

func getString(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if item := strings.TrimSpace(part); item != "" {
			values = append(values, item)
		}
	}
	return values
}
