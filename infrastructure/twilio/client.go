package twilio

import (
	"context"
	"encoding/json"
	"errors"
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
	DefaultBaseURL = "https://api.twilio.com"
	sendTimeout    = 15 * time.Second
	maxSMSLength   = 1600
)

var ErrNotConfigured = errors.New("twilio credentials not configured")

type Config struct {
	AccountSID          string
	AuthToken           string
	FromNumber          string
	MessagingServiceSID string
	BaseURL             string
	HTTPClient          *http.Client
	MaxRetries          int
	RetryDelay          time.Duration
}

// APIError is the JSON error body Twilio returns.
type APIError struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	MoreInfo string `json:"more_info"`
	Status   int    `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twilio %d: %s (code %d)", e.Status, e.Message, e.Code)
}

// Client sends SMS through the Twilio REST API.
type Client struct {
	cfg      Config
	executor failsafe.Executor[*http.Response]
}

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: sendTimeout}
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(cfg.RetryDelay, 4*cfg.RetryDelay).
		WithMaxRetries(cfg.MaxRetries).
		ReturnLastFailure().
		HandleIf(func(resp *http.Response, err error) bool {
			if err != nil {
				return !errors.Is(err, context.Canceled)
			}
			return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		}).
		OnRetry(func(e failsafe.ExecutionEvent[*http.Response]) {
			if resp := e.LastResult(); resp != nil {
				resp.Body.Close()
			}
			logrus.Warnf("[TWILIO] send attempt %d failed, retrying", e.Attempts())
		}).
		Build()

	return &Client{cfg: cfg, executor: failsafe.With[*http.Response](retry)}
}

func (c *Client) Configured() bool {
	return c.cfg.AccountSID != "" && c.cfg.AuthToken != "" && (c.cfg.FromNumber != "" || c.cfg.MessagingServiceSID != "")
}

type messageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// SendText delivers body to a phone number ("whatsapp:+1..." addresses go over Twilio's WhatsApp sender). Long bodies are cut at the SMS concatenation limit.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	if r := []rune(body); len(r) > maxSMSLength {
		body = string(r[:maxSMSLength])
	}

	form := url.Values{"To": {to}, "Body": {body}}
	if c.cfg.MessagingServiceSID != "" {
		form.Set("MessagingServiceSid", c.cfg.MessagingServiceSID)
	} else {
		from := c.cfg.FromNumber
		if strings.HasPrefix(to, "whatsapp:") && !strings.HasPrefix(from, "whatsapp:") {
			from = "whatsapp:" + from
		}
		form.Set("From", from)
	}
	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, c.cfg.AccountSID)

	resp, err := c.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return c.cfg.HTTPClient.Do(req)
	})
	if err != nil {
		return fmt.Errorf("twilio send to %s: %w", to, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jerr := json.Unmarshal(raw, apiErr); jerr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	var msg messageResponse
	_ = json.Unmarshal(raw, &msg)
	logrus.Debugf("[TWILIO] sent %s to %s (%s)", msg.SID, to, msg.Status)
	return nil
}
