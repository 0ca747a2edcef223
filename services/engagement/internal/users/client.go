package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ClientConfig holds configurable settings for the users service client.
type ClientConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	Timeout        time.Duration
}

// Client fetches profiles from the users service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Config     ClientConfig
	CB         *gobreaker.CircuitBreaker
	Log        *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func NewClient(baseURL string, cfg ClientConfig, opts ...Option) *Client {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Config:     cfg,
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// NewBreaker builds the circuit breaker used around users service calls.
// Unknown users are answers, not failures, and never trip it.
func NewBreaker(name string, maxRequests uint32, interval, timeout time.Duration, failureThreshold uint32, log *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: maxRequests,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnknownUser)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

type profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func (c *Client) DisplayName(ctx context.Context, userID string) (string, error) {
	u := c.BaseURL + "/v1/users/" + url.PathEscape(userID)
	p, err := doWithBreaker[profile](ctx, c, u)
	if err != nil {
		return "", err
	}
	return p.DisplayName, nil
}

func doWithBreaker[T any](ctx context.Context, c *Client, u string) (*T, error) {
	if c.CB == nil {
		return doJSONWithRetry[T](ctx, c, u)
	}
	result, err := c.CB.Execute(func() (interface{}, error) {
		return doJSONWithRetry[T](ctx, c, u)
	})
	if err != nil {
		return nil, err
	}
	return result.(*T), nil
}

func doJSONWithRetry[T any](ctx context.Context, c *Client, u string) (*T, error) {
	var lastErr error
	for attempt := 0; attempt <= c.Config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.Config.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			c.Log.Debug("retrying request", zap.String("url", u), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		result, err := doJSON[T](ctx, c, u)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrUnknownUser) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		c.Log.Warn("request failed", zap.String("url", u), zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, lastErr
}

func doJSON[T any](ctx context.Context, c *Client, u string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUnknownUser
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("users: status %d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}

	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("users: decode: %w", err)
	}
	return &out, nil
}
