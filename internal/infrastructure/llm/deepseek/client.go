// Package deepseek is a CompletionProvider for DeepSeek's OpenAI-compatible
// chat completions API.
//
// Both the buffered and the streaming calls go through a circuit breaker so a
// failing upstream is not hammered by every incoming question. Only transport
// failures and 5xx responses count against the breaker; rejected credentials
// and caller cancellations do not.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/mathsolver/solver-api/internal/core/domain"
	"github.com/mathsolver/solver-api/internal/core/ports"
)

const (
	DefaultBaseURL = "https://api.deepseek.com"
	DefaultModel   = "deepseek-chat"

	completionsPath = "/chat/completions"
	maxErrorBody    = 64 << 10
)

// Config holds connection settings for the upstream API.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds a buffered completion end to end and the wait for
	// response headers of a streaming one. Zero disables it.
	Timeout time.Duration

	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// Client talks to the chat completions endpoint.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

// New builds a Client. Empty BaseURL and Model fall back to the DeepSeek defaults.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BreakerMaxFailures == 0 {
		cfg.BreakerMaxFailures = 5
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Transport: transport},
		log:  log,
	}

	maxFailures := cfg.BreakerMaxFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "deepseek",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: isBreakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("upstream circuit breaker state change")
		},
	})

	return c
}

var _ ports.CompletionProvider = (*Client)(nil)

// isBreakerSuccess keeps caller-side outcomes from tripping the breaker.
func isBreakerSuccess(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode < http.StatusInternalServerError
	}
	return false
}

// APIError is a non-2xx response from the upstream API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return fmt.Sprintf("deepseek: authentication failed (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("deepseek: status %d: %s", e.StatusCode, e.Message)
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete performs a buffered completion and returns the first choice's content.
func (c *Client) Complete(ctx context.Context, messages []domain.Message) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	res, err := c.breaker.Execute(func() (interface{}, error) {
		resp, err := c.post(ctx, chatRequest{Model: c.cfg.Model, Messages: messages})
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		var out chatResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return nil, fmt.Errorf("deepseek: decode response: %w", err)
		}
		return out, nil
	})
	if err != nil {
		return "", c.breakerError(err)
	}

	out := res.(chatResponse)
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == nil {
		return "", domain.ErrMalformedUpstreamResponse
	}

	c.log.Debug().Dur("elapsed", time.Since(started)).Msg("completion received")
	return *out.Choices[0].Message.Content, nil
}

// Stream opens a streaming completion. The returned stream reads from the
// response body; ctx governs the whole lifetime of that body.
func (c *Client) Stream(ctx context.Context, messages []domain.Message) (ports.FragmentStream, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, chatRequest{Model: c.cfg.Model, Messages: messages, Stream: true})
	})
	if err != nil {
		return nil, c.breakerError(err)
	}
	return newStreamReader(res.(*http.Response).Body), nil
}

// Ping reports the upstream as unavailable while the circuit breaker is open.
// It does not call the API.
func (c *Client) Ping(context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("deepseek: circuit breaker open")
	}
	return nil
}

func (c *Client) breakerError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("deepseek: upstream unavailable: %w", err)
	}
	return err
}

// post sends body and returns the response only for 2xx statuses.
func (c *Client) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("deepseek: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+completionsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("deepseek: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body.Stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepseek: send request: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw, resp.Status)}
}

// errorMessage extracts the provider's error text, falling back to the raw body.
func errorMessage(raw []byte, status string) string {
	var body apiErrorBody
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" {
		return msg
	}
	return status
}
