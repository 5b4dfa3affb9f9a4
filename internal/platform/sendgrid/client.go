// Package sendgrid sends transactional mail through the SendGrid v3 API.
package sendgrid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/workbench-backend/internal/pkg/textutil"
	"github.com/yungbote/workbench-backend/internal/platform/ctxutil"
	"github.com/yungbote/workbench-backend/internal/platform/envutil"
	"github.com/yungbote/workbench-backend/internal/platform/httpx"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

type Client interface {
	Send(ctx context.Context, msg Message) error
}

type Config struct {
	APIKey     string
	BaseURL    string
	FromEmail  string
	FromName   string
	Timeout    time.Duration
	MaxRetries int
}

func ConfigFromEnv() Config {
	return Config{
		APIKey:     envutil.String("SENDGRID_API_KEY", ""),
		BaseURL:    envutil.String("SENDGRID_BASE_URL", "https://api.sendgrid.com"),
		FromEmail:  envutil.String("SENDGRID_FROM_EMAIL", ""),
		FromName:   envutil.String("SENDGRID_FROM_NAME", "Workbench"),
		Timeout:    time.Duration(envutil.Int("SENDGRID_TIMEOUT_SECONDS", 15)) * time.Second,
		MaxRetries: envutil.Int("SENDGRID_MAX_RETRIES", 2),
	}
}

// New returns a SendGrid client, or a client that only logs the message when no
// API key is configured.
func New(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return &logClient{log: log.With("client", "MailLogger")}, nil
	}
	if strings.TrimSpace(cfg.FromEmail) == "" {
		return nil, fmt.Errorf("missing SENDGRID_FROM_EMAIL")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sendgrid.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		log:        log.With("client", "SendGridClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Body)
	if len(msg) > 512 {
		msg = textutil.Truncate(msg, 512) + "..."
	}
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, msg)
}

func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailSend struct {
	Personalizations []personalization `json:"personalizations"`
	From             address           `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []address `json:"to"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func (c *client) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return fmt.Errorf("sendgrid: recipient required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return fmt.Errorf("sendgrid: subject required")
	}
	var parts []content
	if t := strings.TrimSpace(msg.Text); t != "" {
		parts = append(parts, content{Type: "text/plain", Value: t})
	}
	if h := strings.TrimSpace(msg.HTML); h != "" {
		parts = append(parts, content{Type: "text/html", Value: h})
	}
	if len(parts) == 0 {
		return fmt.Errorf("sendgrid: text or html body required")
	}
	body, err := json.Marshal(mailSend{
		Personalizations: []personalization{{To: []address{{Email: to}}}},
		From:             address{Email: c.cfg.FromEmail, Name: c.cfg.FromName},
		Subject:          msg.Subject,
		Content:          parts,
	})
	if err != nil {
		return err
	}

	backoff := 500 * time.Millisecond
	for attempt := 0; ; attempt++ {
		resp, err := c.post(ctx, body)
		if err == nil {
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt >= c.cfg.MaxRetries {
			return err
		}
		wait := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("sendgrid request retrying", "attempt", attempt+1, "sleep", wait.String(), "error", err)
		if err := httpx.Sleep(ctx, wait); err != nil {
			return err
		}
		backoff *= 2
	}
}

func (c *client) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodPost, c.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, nil
}

// logClient stands in for SendGrid in local and test setups.
type logClient struct {
	log *logger.Logger
}

func (l *logClient) Send(ctx context.Context, msg Message) error {
	l.log.Info("mail not sent, SENDGRID_API_KEY unset", "subject", msg.Subject, "body", msg.Text)
	return nil
}
