package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultBaseURL is the OpenRouter endpoint every model can be reached through.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// maxResponseBytes bounds how much of a provider answer is read.
const maxResponseBytes = 8 << 20

// Route is where requests for one provider go.
type Route struct {
	BaseURL string
	APIKey  string
}

// Config controls a Client.
type Config struct {
	Default Route            // used for unknown providers and providers without a key
	Routes  map[string]Route // keyed by provider id, e.g. "openai", "anthropic"

	Temperature float32
	MaxTokens   int
	TopP        float32

	TransportRetries int           // attempts per model for retryable errors, default 3
	BackoffBase      time.Duration // default 1s
	BackoffMax       time.Duration // default 10s

	Referer string // optional OpenRouter attribution headers
	Title   string

	HTTPClient *http.Client
}

// Client sends single-turn chat completions.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

// NewClient creates a Client, filling unset config with defaults.
func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Default.BaseURL == "" {
		cfg.Default.BaseURL = DefaultBaseURL
	}
	if cfg.TransportRetries <= 0 {
		cfg.TransportRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, log: log}
}

// ProviderID extracts the provider from a model id: the part before "/",
// lowercased. Ids without a provider prefix yield "".
func ProviderID(model string) string {
	i := strings.Index(model, "/")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(model[:i]))
}

// RouteFor picks the route for a model. A provider route is only used when
// it has a key.
func (c *Client) RouteFor(model string) Route {
	rt, _ := c.route(model)
	return rt
}

// route also reports whether the provider's own endpoint was chosen, in which
// case the provider prefix is dropped from the model id on the wire.
func (c *Client) route(model string) (Route, bool) {
	if rt, ok := c.cfg.Routes[ProviderID(model)]; ok && rt.APIKey != "" {
		if rt.BaseURL == "" {
			return Route{BaseURL: c.cfg.Default.BaseURL, APIKey: rt.APIKey}, false
		}
		return rt, true
	}
	return c.cfg.Default, false
}

type chatRequest struct {
	Model       string                         `json:"model"`
	Messages    []openai.ChatCompletionMessage `json:"messages"`
	Stream      bool                           `json:"stream"`
	Temperature float32                        `json:"temperature"`
	MaxTokens   int                            `json:"max_tokens,omitempty"`
	TopP        float32                        `json:"top_p,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
		Text *string `json:"text"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Call sends prompt to model and returns the first choice's content. A
// blank content comes back as "" with a nil error. Retryable transport
// errors are retried with exponential backoff before giving up on the model.
func (c *Client) Call(ctx context.Context, model, prompt string, timeout time.Duration) (string, error) {
	reqID := uuid.NewString()
	var lastErr error
	for attempt := 1; attempt <= c.cfg.TransportRetries; attempt++ {
		start := time.Now()
		content, err := c.do(ctx, reqID, model, prompt, timeout)
		if err == nil {
			c.log.Info("llm.http.ok",
				zap.String("request_id", reqID),
				zap.String("model", model),
				zap.Int("attempt", attempt),
				zap.Int("chars", len(content)),
				zap.Duration("elapsed", time.Since(start)),
			)
			return content, nil
		}
		lastErr = err

		var te *TransportError
		if !errors.As(err, &te) || !te.Retryable || attempt == c.cfg.TransportRetries {
			break
		}
		wait := c.backoff(attempt)
		c.log.Warn("llm.http.retry",
			zap.String("request_id", reqID),
			zap.String("model", model),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}
	c.log.Warn("llm.http.failed", zap.String("request_id", reqID), zap.String("model", model), zap.Error(lastErr))
	return "", lastErr
}

func (c *Client) backoff(attempt int) time.Duration {
	wait := c.cfg.BackoffBase << uint(attempt-1)
	if wait > c.cfg.BackoffMax || wait <= 0 {
		wait = c.cfg.BackoffMax
	}
	return wait
}

func (c *Client) do(ctx context.Context, reqID, model, prompt string, timeout time.Duration) (string, error) {
	rt, direct := c.route(model)
	wire := model
	if direct {
		wire = model[strings.Index(model, "/")+1:]
	}
	body, err := json.Marshal(chatRequest{
		Model:       wire,
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Stream:      false,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
		TopP:        c.cfg.TopP,
	})
	if err != nil {
		return "", err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	url := strings.TrimRight(rt.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if rt.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+rt.APIKey)
	}
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	c.log.Debug("llm.http.request", zap.String("request_id", reqID), zap.String("model", model), zap.String("url", url))
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &TransportError{Model: model, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &TransportError{Model: model, Status: resp.StatusCode, Retryable: true, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{
			Model:     model,
			Status:    resp.StatusCode,
			Retryable: retryableStatus(resp.StatusCode),
			Body:      truncate(strings.TrimSpace(string(data)), 300),
		}
	}
	return decodeContent(model, data)
}

// decodeContent pulls the completion text out of a chat or legacy
// completion response.
func decodeContent(model string, data []byte) (string, error) {
	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return "", &MalformedResponseError{Model: model, Reason: "invalid JSON: " + err.Error(), Body: truncate(string(data), 300)}
	}
	if len(cr.Choices) == 0 {
		reason := "no choices"
		if cr.Error != nil && cr.Error.Message != "" {
			reason += ": " + cr.Error.Message
		}
		return "", &MalformedResponseError{Model: model, Reason: reason, Body: truncate(string(data), 300)}
	}
	first := cr.Choices[0]
	if first.Message != nil && first.Message.Content != nil {
		return *first.Message.Content, nil
	}
	if first.Text != nil {
		return *first.Text, nil
	}
	return "", &MalformedResponseError{Model: model, Reason: "choice has neither message.content nor text", Body: truncate(string(data), 300)}
}
