package meta

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
)

const (
	DefaultBaseURL      = "https://graph.facebook.com"
	defaultHTTPTimeout  = 30 * time.Second
	defaultPollInterval = 1500 * time.Millisecond
	defaultPollTimeout  = 30 * time.Second
	defaultRetryDelay   = 1500 * time.Millisecond
	defaultMaxRetries   = 2
)

// GraphError is the error object the Graph API returns on failure.
type GraphError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	StatusCode int    `json:"-"`
}

func (e *GraphError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("graph api %d: %s (%s, code %d)", e.StatusCode, e.Message, e.Type, e.Code)
	}
	return fmt.Sprintf("graph api %d: %s", e.StatusCode, e.Message)
}

type Config struct {
	BaseURL      string
	Version      string
	HTTPClient   *http.Client
	Timeout      time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
}

func (c Config) withDefaults(version string) Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Version == "" {
		c.Version = version
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultHTTPTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = defaultPollTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	return c
}

type graphClient struct {
	http    *http.Client
	baseURL string
	version string
}

func (g *graphClient) endpoint(path string) string {
	return fmt.Sprintf("%s/%s/%s", g.baseURL, g.version, strings.TrimLeft(path, "/"))
}

func (g *graphClient) postJSON(ctx context.Context, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(path), bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return g.do(req, out)
}

func (g *graphClient) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return g.do(req, out)
}

func (g *graphClient) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint(path)+"?"+query.Encode(), nil)
	if err != nil {
		return err
	}
	return g.do(req, out)
}

func (g *graphClient) do(req *http.Request, out any) error {
	resp, err := g.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}

	var envelope struct {
		Error *GraphError `json:"error"`
	}
	_ = json.Unmarshal(body, &envelope)
	if envelope.Error != nil {
		envelope.Error.StatusCode = resp.StatusCode
		return envelope.Error
	}
	if resp.StatusCode >= 300 {
		return &GraphError{Message: strings.TrimSpace(string(body)), StatusCode: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}

func newRetryPolicy[R any](label string, cfg Config) retrypolicy.RetryPolicy[R] {
	return retrypolicy.NewBuilder[R]().
		WithMaxRetries(cfg.MaxRetries).
		WithDelay(cfg.RetryDelay).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[R]) {
			logrus.Warnf("[META] %s failed on attempt %d, retrying: %v", label, e.Attempts(), e.LastError())
		}).
		Build()
}
