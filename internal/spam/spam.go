// Package spam decides whether an outgoing email needs a spam check and
// scores it through the external spam-scoring API.
package spam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"smart-mail-router/internal/model"
	"smart-mail-router/internal/pattern"
)

// Threshold is the score at or above which a message is spam
const Threshold = 7.0

const (
	// DefaultTimeout bounds a scoring request
	DefaultTimeout = 30 * time.Second
	// DefaultKeyValidationTimeout bounds an API key validation request
	DefaultKeyValidationTimeout = 15 * time.Second

	apiKeyHeader = "X-API-Key"
	maxBodyBytes = 1 << 20
)

var (
	ErrNotConfigured = errors.New("spam API endpoint or key is not configured")
	ErrMissingScore  = errors.New("spam API response has no score")
)

// Decision is the outcome of a spam check
type Decision struct {
	Checked bool    `json:"checked"`
	Failed  bool    `json:"failed"`
	IsSpam  bool    `json:"is_spam"`
	Score   float64 `json:"score"`
	Reason  string  `json:"reason"`
}

// ShouldCheck reports whether a message with this subject must be scored.
//
// Configured global subject patterns are authoritative; the rule's own flag
// is consulted only when none are configured.
func ShouldCheck(subject string, settings *model.Settings, rule *model.RoutingRule) bool {
	if settings != nil {
		if patterns := pattern.Split(settings.AntiSpamSubjectPatterns); len(patterns) > 0 {
			return pattern.MatchAny(pattern.Wildcard, patterns, subject)
		}
	}
	if rule != nil {
		return rule.AntiSpamEnabled
	}
	return false
}

// IsSpam applies the fixed threshold to a score
func IsSpam(score float64) bool {
	return score >= Threshold
}

type scoreRequest struct {
	Message string `json:"message"`
}

type scoreResponse struct {
	Score   *float64 `json:"score"`
	Message string   `json:"message,omitempty"`
}

// Client talks to the spam-scoring API
type Client struct {
	httpClient           *http.Client
	timeout              time.Duration
	keyValidationTimeout time.Duration
}

// NewClient creates a spam API client. Non-positive timeouts fall back to
// the defaults.
func NewClient(timeout, keyValidationTimeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if keyValidationTimeout <= 0 {
		keyValidationTimeout = DefaultKeyValidationTimeout
	}
	return &Client{
		httpClient:           &http.Client{},
		timeout:              timeout,
		keyValidationTimeout: keyValidationTimeout,
	}
}

// Decide scores a message. It never returns an error: any failure of the
// API yields a not-spam decision whose reason records the failure.
func (c *Client) Decide(ctx context.Context, message, apiKey, endpoint string) Decision {
	resp, err := c.score(ctx, c.timeout, message, apiKey, endpoint)
	if err != nil {
		logrus.Warnf("Spam check failed, treating message as not spam: %v", err)
		return Decision{
			Checked: true,
			Failed:  true,
			Reason:  fmt.Sprintf("spam check failed: %v", err),
		}
	}

	score := *resp.Score
	decision := Decision{
		Checked: true,
		IsSpam:  IsSpam(score),
		Score:   score,
	}
	if decision.IsSpam {
		decision.Reason = fmt.Sprintf("score %.2f is at or above threshold %.0f", score, Threshold)
	} else {
		decision.Reason = fmt.Sprintf("score %.2f is below threshold %.0f", score, Threshold)
	}
	if resp.Message != "" {
		decision.Reason += ": " + resp.Message
	}
	return decision
}

// ValidateKey checks that the API accepts the key by scoring a short test message
func (c *Client) ValidateKey(ctx context.Context, apiKey, endpoint string) error {
	_, err := c.score(ctx, c.keyValidationTimeout, "API key validation", apiKey, endpoint)
	return err
}

func (c *Client) score(ctx context.Context, timeout time.Duration, message, apiKey, endpoint string) (*scoreResponse, error) {
	if endpoint == "" || apiKey == "" {
		return nil, ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(scoreRequest{Message: message})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(apiKeyHeader, apiKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}

	var resp scoreResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("malformed response: %w", err)
	}
	if resp.Score == nil {
		return nil, ErrMissingScore
	}

	return &resp, nil
}
