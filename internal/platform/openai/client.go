package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/workbench-backend/internal/platform/ctxutil"
	"github.com/yungbote/workbench-backend/internal/platform/envutil"
	"github.com/yungbote/workbench-backend/internal/platform/httpx"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

// Message is one role-tagged input item. Multiple system messages are allowed.
type Message struct {
	Role    string
	Content string
}

func System(content string) Message { return Message{Role: "system", Content: content} }
func User(content string) Message   { return Message{Role: "user", Content: content} }

type Usage struct {
	InputTokens  int
	OutputTokens int
}

type Result struct {
	Text  string
	Model string
	Usage Usage
}

// Client speaks the OpenAI Responses API. It is the only package that knows the wire format.
type Client interface {
	// Plain text (no schema).
	GenerateText(ctx context.Context, msgs []Message) (Result, error)

	// Structured outputs (json_schema).
	GenerateJSON(ctx context.Context, msgs []Message, schemaName string, schema map[string]any) (map[string]any, Result, error)

	// Stream output_text deltas. onDelta is called in order; returning an error aborts the stream.
	StreamText(ctx context.Context, msgs []Message, onDelta func(delta string) error) (Result, error)
}

type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	Temperature    *float64
}

func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:         strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		BaseURL:        envutil.String("OPENAI_BASE_URL", "https://api.openai.com"),
		Model:          envutil.String("OPENAI_MODEL", "gpt-4.1-mini"),
		Timeout:        time.Duration(envutil.Int("LLM_TIMEOUT_SECONDS", 120)) * time.Second,
		MaxRetries:     envutil.Int("LLM_MAX_RETRIES", 3),
		InitialBackoff: time.Second,
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_TEMPERATURE")); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = &f
		}
	}
	return cfg
}

type client struct {
	log            *logger.Logger
	baseURL        string
	apiKey         string
	model          string
	temperature    *float64
	maxRetries     int
	initialBackoff time.Duration
	httpClient     *http.Client
	// streamClient has no overall timeout; streams are bounded by the caller's context.
	streamClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gpt-4.1-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	return &client{
		log:            log.With("service", "OpenAIClient"),
		baseURL:        baseURL,
		apiKey:         cfg.APIKey,
		model:          strings.TrimSpace(cfg.Model),
		temperature:    cfg.Temperature,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		streamClient:   &http.Client{},
	}, nil
}

// HTTPError is a non-2xx upstream response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("openai http %d: %s", e.StatusCode, e.Body)
}

func (e *HTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// -------------------- Responses API --------------------

type inputItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responsesRequest struct {
	Model string      `json:"model"`
	Input []inputItem `json:"input"`

	Text *struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type responsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type responsesResponse struct {
	Model  string `json:"model"`
	Output []struct {
		Type    string `json:"type"`
		Role    string `json:"role,omitempty"`
		Content []struct {
			Type    string `json:"type"`
			Text    string `json:"text,omitempty"`
			Refusal string `json:"refusal,omitempty"`
		} `json:"content,omitempty"`
	} `json:"output"`
	Usage responsesUsage `json:"usage"`
}

func (c *client) newRequest(msgs []Message, stream bool) responsesRequest {
	req := responsesRequest{Model: c.model, Temperature: c.temperature, Stream: stream}
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		req.Input = append(req.Input, inputItem{Role: m.Role, Content: m.Content})
	}
	return req
}

func extractOutputText(resp responsesResponse) (string, string) {
	var out strings.Builder
	refusal := ""
	for _, item := range resp.Output {
		if item.Type != "message" || item.Role != "assistant" {
			continue
		}
		for _, c := range item.Content {
			switch c.Type {
			case "output_text":
				out.WriteString(c.Text)
			case "refusal":
				refusal = c.Refusal
			}
		}
	}
	return out.String(), refusal
}

func (c *client) GenerateText(ctx context.Context, msgs []Message) (Result, error) {
	req := c.newRequest(msgs, false)
	var resp responsesResponse
	if err := c.do(ctx, http.MethodPost, "/v1/responses", req, &resp); err != nil {
		return Result{}, err
	}
	text, refusal := extractOutputText(resp)
	if refusal != "" {
		return Result{}, fmt.Errorf("model refused: %s", refusal)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("no output_text found in response")
	}
	return Result{Text: text, Model: firstNonEmpty(resp.Model, req.Model), Usage: usageOrEstimate(resp.Usage, msgs, text)}, nil
}

func (c *client) GenerateJSON(ctx context.Context, msgs []Message, schemaName string, schema map[string]any) (map[string]any, Result, error) {
	if schemaName == "" {
		return nil, Result{}, errors.New("schemaName required")
	}
	if schema == nil {
		return nil, Result{}, errors.New("schema required")
	}
	req := c.newRequest(msgs, false)
	req.Text = &struct {
		Format map[string]any `json:"format,omitempty"`
	}{Format: map[string]any{
		"type":   "json_schema",
		"name":   schemaName,
		"schema": schema,
		"strict": true,
	}}

	var resp responsesResponse
	if err := c.do(ctx, http.MethodPost, "/v1/responses", req, &resp); err != nil {
		return nil, Result{}, err
	}
	text, refusal := extractOutputText(resp)
	if refusal != "" {
		return nil, Result{}, fmt.Errorf("model refused: %s", refusal)
	}
	res := Result{Text: text, Model: firstNonEmpty(resp.Model, req.Model), Usage: usageOrEstimate(resp.Usage, msgs, text)}
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, res, fmt.Errorf("failed to parse model JSON: %w", err)
	}
	return obj, res, nil
}

// StreamText streams output_text deltas from the Responses API. Only establishing the
// stream is retried; once bytes flow, errors surface to the caller.
func (c *client) StreamText(ctx context.Context, msgs []Message, onDelta func(delta string) error) (Result, error) {
	ctx = ctxutil.Default(ctx)
	reqBody := c.newRequest(msgs, true)

	var resp *http.Response
	err := c.retry(ctx, "/v1/responses", func() (*http.Response, error) {
		r, err := c.send(ctx, c.streamClient, http.MethodPost, "/v1/responses", reqBody, "text/event-stream")
		if err != nil {
			return r, err
		}
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			raw, _ := io.ReadAll(r.Body)
			_ = r.Body.Close()
			return r, &HTTPError{StatusCode: r.StatusCode, Body: string(raw)}
		}
		resp = r
		return r, nil
	})
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	var (
		full  strings.Builder
		usage responsesUsage
		model = reqBody.Model
	)
	err = streamSSE(resp.Body, func(event string, data string) error {
		data = strings.TrimSpace(data)
		if data == "" || data == "[DONE]" {
			return nil
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(data), &obj); err != nil {
			return nil
		}
		evt := strings.TrimSpace(event)
		if t, ok := obj["type"].(string); ok && strings.TrimSpace(t) != "" {
			evt = strings.TrimSpace(t)
		}
		switch {
		case strings.HasSuffix(evt, "output_text.delta"):
			d, _ := obj["delta"].(string)
			d = strings.TrimRight(d, "\u0000")
			if d == "" {
				return nil
			}
			full.WriteString(d)
			if onDelta != nil {
				return onDelta(d)
			}
		case evt == "response.completed":
			if r, ok := obj["response"].(map[string]any); ok {
				if m, ok := r["model"].(string); ok && m != "" {
					model = m
				}
				if u, ok := r["usage"].(map[string]any); ok {
					usage.InputTokens = intFromAny(u["input_tokens"])
					usage.OutputTokens = intFromAny(u["output_tokens"])
				}
			}
		case evt == "error" || evt == "response.failed":
			b, _ := json.Marshal(obj)
			return fmt.Errorf("openai stream error: %s", string(b))
		case evt == "response.refusal.delta":
			return fmt.Errorf("model refused")
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, err
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}
	text := full.String()
	return Result{Text: text, Model: model, Usage: usageOrEstimate(usage, msgs, text)}, nil
}

// -------------------- transport --------------------

func (c *client) send(ctx context.Context, hc *http.Client, method, path string, body any, accept string) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return hc.Do(req)
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	ctx = ctxutil.Default(ctx)
	var raw []byte
	err := c.retry(ctx, path, func() (*http.Response, error) {
		resp, err := c.send(ctx, c.httpClient, method, path, body, "")
		if err != nil {
			return resp, err
		}
		b, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return resp, readErr
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp, &HTTPError{StatusCode: resp.StatusCode, Body: string(b)}
		}
		raw = b
		return resp, nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if uErr := json.Unmarshal(raw, out); uErr != nil {
		return fmt.Errorf("openai decode error: %w", uErr)
	}
	return nil
}

// retry runs attempt up to maxRetries+1 times with exponential backoff on retryable failures.
func (c *client) retry(ctx context.Context, path string, attempt func() (*http.Response, error)) error {
	backoff := c.initialBackoff
	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		resp, err := attempt()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !httpx.IsRetryableError(err) || i >= c.maxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 30*time.Second))
		c.log.Warn("OpenAI request retrying",
			"path", path,
			"attempt", i+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
}

// -------------------- helpers --------------------

func usageOrEstimate(u responsesUsage, msgs []Message, output string) Usage {
	if u.InputTokens > 0 || u.OutputTokens > 0 {
		return Usage{InputTokens: u.InputTokens, OutputTokens: u.OutputTokens}
	}
	in := 0
	for _, m := range msgs {
		in += estimateTokens(m.Content)
	}
	return Usage{InputTokens: in, OutputTokens: estimateTokens(output)}
}

func intFromAny(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return 0
}

func estimateTokens(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len([]rune(text))) / 4.0))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
