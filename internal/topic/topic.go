// Package topic produces validated, sufficiently novel debate topics.
package topic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/neo/battlearena/internal/logging"
)

var (
	// ErrRateLimited means the upstream model provider refused the call
	// with a rate-limit response. Its message carries "429 rate limit" so
	// callers matching on text see it too.
	ErrRateLimited = errors.New("429 rate limit exceeded")

	// ErrNoTopic means no acceptable topic could be produced
	ErrNoTopic = errors.New("no topic available")

	// ErrInvalidTopic means a generated topic failed validation
	ErrInvalidTopic = errors.New("invalid topic")
)

// SimilarityThreshold is the title similarity at or above which a candidate
// counts as a repeat of a recent topic
const SimilarityThreshold = 0.6

// recentWindow is how many previous titles are checked for repeats
const recentWindow = 30

// Topic is a debate subject with prompts for both sides
type Topic struct {
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Source        string   `json:"source"`
	SourceURL     string   `json:"source_url"`
	SupportPoints []string `json:"support_points"`
	OpposePoints  []string `json:"oppose_points"`
}

// Provider returns a fresh topic or fails. Rate-limit failures wrap
// ErrRateLimited.
type Provider interface {
	GetDailyTopic(ctx context.Context) (*Topic, error)
}

// History lists recently used titles for repeat detection
type History interface {
	RecentTopicTitles(ctx context.Context, limit int) ([]string, error)
}

// Validate checks a topic has the fields a battle needs
func (t *Topic) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("%w: missing title", ErrInvalidTopic)
	}
	if strings.TrimSpace(t.Description) == "" {
		return fmt.Errorf("%w: missing description", ErrInvalidTopic)
	}
	if countNonEmpty(t.SupportPoints) < 2 {
		return fmt.Errorf("%w: need at least two support points", ErrInvalidTopic)
	}
	if countNonEmpty(t.OpposePoints) < 2 {
		return fmt.Errorf("%w: need at least two oppose points", ErrInvalidTopic)
	}
	return nil
}

func countNonEmpty(points []string) int {
	n := 0
	for _, p := range points {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

// IsRateLimit reports whether err signals an upstream rate limit, either by
// wrapping ErrRateLimited or by its message
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

// Similarity returns the Jaccard similarity of the word sets of a and b
func Similarity(a, b string) float64 {
	wa, wb := words(a), words(b)
	if len(wa) == 0 && len(wb) == 0 {
		return 1
	}
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	shared := 0
	for w := range wa {
		if wb[w] {
			shared++
		}
	}
	union := len(wa) + len(wb) - shared
	return float64(shared) / float64(union)
}

// IsRepeat reports whether title is too similar to any of recent
func IsRepeat(title string, recent []string) bool {
	for _, r := range recent {
		if Similarity(title, r) >= SimilarityThreshold {
			return true
		}
	}
	return false
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "to": true, "in": true,
	"is": true, "are": true, "be": true, "should": true, "and": true, "or": true,
	"for": true, "on": true, "it": true, "we": true, "will": true,
}

func words(s string) map[string]bool {
	set := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if !stopWords[f] {
			set[f] = true
		}
	}
	return set
}

func recentTitles(ctx context.Context, history History) []string {
	if history == nil {
		return nil
	}
	titles, err := history.RecentTopicTitles(ctx, recentWindow)
	if err != nil {
		logging.Warn("Failed to load recent topics, skipping repeat check", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return titles
}
