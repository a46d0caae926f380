package judging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/logging"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// completer is the part of a langchaingo model the judge calls
type completer interface {
	Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error)
}

// LLMJudge asks a language model to pick the most convincing cast
type LLMJudge struct {
	llm completer
}

var _ Judge = (*LLMJudge)(nil)

type verdict struct {
	WinnerCastID string `json:"winner_cast_id"`
	Reasoning    string `json:"reasoning"`
}

// NewLLMJudge creates a judge backed by an OpenAI chat model
func NewLLMJudge(apiKey, model string) (*LLMJudge, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	llm, err := openai.New(
		openai.WithToken(apiKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create judge LLM: %v", err)
	}
	return &LLMJudge{llm: llm}, nil
}

// Judge implements Judge. A verdict naming an unknown cast counts as no
// winner.
func (j *LLMJudge) Judge(ctx context.Context, battle *database.Battle, casts []*database.Cast) (*Result, error) {
	if len(casts) == 0 {
		return nil, ErrNoCasts
	}

	completion, err := j.llm.Call(ctx, buildPrompt(battle, casts), llms.WithTemperature(0.2))
	if err != nil {
		return nil, fmt.Errorf("judging failed: %w", err)
	}

	completion = strings.TrimSpace(completion)
	completion = strings.TrimPrefix(completion, "```json")
	completion = strings.Trim(completion, "`")
	completion = strings.TrimSpace(completion)

	var v verdict
	if err := json.Unmarshal([]byte(completion), &v); err != nil {
		return nil, fmt.Errorf("failed to parse verdict: %v\nraw response: %s", err, completion)
	}

	winner := findCast(casts, v.WinnerCastID)
	if winner == nil {
		logging.Warn("Judge picked an unknown cast", map[string]interface{}{
			"battle_id": battle.ID,
			"cast_id":   v.WinnerCastID,
		})
		return &Result{}, nil
	}
	return &Result{Winner: selectionFor(winner, v.Reasoning)}, nil
}

func buildPrompt(battle *database.Battle, casts []*database.Cast) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are judging a debate on: %q\n%s\n\n", battle.Title, battle.Description)
	b.WriteString("Each argument below is labelled with its id and side.\n\n")
	for _, c := range casts {
		fmt.Fprintf(&b, "[%s] (%s, %d likes)\n%s\n\n", c.ID, c.Side, c.Likes, truncateString(c.Content, 1200))
	}
	b.WriteString(`Pick the single most convincing argument, weighing logic, evidence and clarity.
Your response MUST ONLY be a valid JSON object, starting with a { symbol:
{
    "winner_cast_id": "<id of the winning argument>",
    "reasoning": "<one or two sentences>"
}`)
	return b.String()
}

// truncateString caps s at length runes, never splitting one
func truncateString(s string, length int) string {
	if utf8.RuneCountInString(s) <= length {
		return s
	}
	runes := []rune(s)
	return string(runes[:length-3]) + "..."
}
