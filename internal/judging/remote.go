package judging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/neo/battlearena/internal/database"
	"github.com/neo/battlearena/internal/logging"
)

// Request is the body POSTed to a remote judge
type Request struct {
	Battle *database.Battle  `json:"battle"`
	Casts  []*database.Cast `json:"casts"`
}

// RemoteJudge delegates to a judging worker over HTTP
type RemoteJudge struct {
	url      string
	token    string
	client   *http.Client
	attempts int
	backoff  time.Duration
}

var _ Judge = (*RemoteJudge)(nil)

// NewRemoteJudge creates a judge that POSTs to url. token, if set, is sent
// as X-Admin-Token.
func NewRemoteJudge(url, token string, timeout time.Duration) *RemoteJudge {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &RemoteJudge{
		url:      strings.TrimRight(url, "/"),
		token:    token,
		client:   &http.Client{Timeout: timeout},
		attempts: 2,
		backoff:  time.Second,
	}
}

// Judge implements Judge
func (j *RemoteJudge) Judge(ctx context.Context, battle *database.Battle, casts []*database.Cast) (*Result, error) {
	if len(casts) == 0 {
		return nil, ErrNoCasts
	}

	body, err := json.Marshal(Request{Battle: battle, Casts: casts})
	if err != nil {
		return nil, fmt.Errorf("failed to encode judge request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= j.attempts; attempt++ {
		result, err := j.post(ctx, body)
		if err == nil {
			return result, nil
		}
		lastErr = err
		logging.Warn("Remote judge attempt failed", map[string]interface{}{
			"battle_id": battle.ID,
			"attempt":   attempt,
			"error":     err.Error(),
		})
		if attempt < j.attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(j.backoff):
			}
		}
	}
	return nil, fmt.Errorf("remote judge failed after %d attempts: %w", j.attempts, lastErr)
}

func (j *RemoteJudge) post(ctx context.Context, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if j.token != "" {
		req.Header.Set("X-Admin-Token", j.token)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("judge returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode judge response: %w", err)
	}
	return &result, nil
}
