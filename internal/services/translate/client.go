package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"dubber/internal/services"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryAttempts  = 3
)

// Direction selects how AdjustLength rewrites the text.
type Direction string

const (
	Shorten  Direction = "shorten"
	Lengthen Direction = "lengthen"
)

// Config captures the runtime settings required to talk to the translation API.
type Config struct {
	APIKey              string
	GroupID             string
	BaseURL             string
	Model               string
	Temperature         float64
	TimeoutSeconds      int
	RequestDelaySeconds int
}

// Client wraps a chat-completion compatible translation endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	requestDelay     time.Duration
	sleeper          func(time.Duration)

	paceMu   sync.Mutex
	nextCall time.Time
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts overrides the default retry count (defaults to 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retryMaxAttempts = attempts
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs a translation client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:              cfg,
		httpClient:       &http.Client{Timeout: timeout},
		retryMaxAttempts: defaultRetryAttempts,
		retryBaseDelay:   defaultRetryBaseDelay,
		retryMaxDelay:    defaultRetryMaxDelay,
		requestDelay:     time.Duration(cfg.RequestDelaySeconds) * time.Second,
	}
	client.cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	client.cfg.GroupID = strings.TrimSpace(cfg.GroupID)
	client.cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	client.cfg.Model = strings.TrimSpace(cfg.Model)
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// Translate renders text into the target language. Errors are tagged with
// the services taxonomy.
func (c *Client) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", services.Wrap(services.ErrValidation, "translate", "translate", "text required", nil)
	}
	if strings.TrimSpace(targetLanguage) == "" {
		return "", services.Wrap(services.ErrValidation, "translate", "translate", "target language required", nil)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "translate", "translate", "api key required", nil)
	}
	content, err := c.completeWithRetry(ctx, translateSystemPrompt, translateUserPrompt(text, targetLanguage), "translate")
	if err != nil {
		return "", classify("translate", err)
	}
	return content, nil
}

// AdjustLength rewrites translated text toward a character target, shortening
// or lengthening it while preserving meaning.
func (c *Client) AdjustLength(ctx context.Context, originalText, currentText, targetLanguage string, targetChars int, direction Direction) (string, error) {
	currentText = strings.TrimSpace(currentText)
	if currentText == "" {
		return "", services.Wrap(services.ErrValidation, "translate", "adjust", "current text required", nil)
	}
	if targetChars <= 0 {
		return "", services.Wrap(services.ErrValidation, "translate", "adjust", "target length required", nil)
	}
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "translate", "adjust", "api key required", nil)
	}

	currentChars := utf8.RuneCountInString(currentText)
	var userPrompt string
	switch direction {
	case Lengthen:
		userPrompt = lengthenUserPrompt(originalText, currentText, targetLanguage, currentChars, targetChars)
	case Shorten:
		userPrompt = shortenUserPrompt(originalText, currentText, targetLanguage, currentChars, targetChars)
	default:
		return "", services.Wrap(services.ErrValidation, "translate", "adjust", fmt.Sprintf("unknown direction %q", direction), nil)
	}

	content, err := c.completeWithRetry(ctx, adjustSystemPrompt, userPrompt, "adjust")
	if err != nil {
		return "", classify("adjust", err)
	}
	return content, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	BaseResp *struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("translate request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// pace enforces the configured minimum spacing between API calls. Retries
// of the same call are spaced by the retry backoff instead.
func (c *Client) pace(ctx context.Context) error {
	if c.requestDelay <= 0 {
		return nil
	}
	c.paceMu.Lock()
	now := time.Now()
	wait := c.nextCall.Sub(now)
	if wait < 0 {
		wait = 0
	}
	c.nextCall = now.Add(wait + c.requestDelay)
	c.paceMu.Unlock()
	return c.sleep(ctx, wait)
}

func (c *Client) completeWithRetry(ctx context.Context, systemPrompt, userPrompt, op string) (string, error) {
	if err := c.pace(ctx); err != nil {
		return "", err
	}
	payload := chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		TopP:        0.95,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.sendOnce(ctx, payload)
		if err == nil {
			return content, nil
		}

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return "", err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", err
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, lastErr)
}

func (c *Client) sendOnce(ctx context.Context, payload chatRequest) (string, error) {
	endpoint := c.cfg.BaseURL
	if c.cfg.GroupID != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "GroupId=" + url.QueryEscape(c.cfg.GroupID)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("translate request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("translate request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request: http error (timeout=%s): %w", c.timeoutDuration(), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("translate request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return "", &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("translate request: decode response: %w", err)
	}
	if decoded.BaseResp != nil && decoded.BaseResp.StatusCode != 0 {
		return "", fmt.Errorf("translate request: api status %d: %s", decoded.BaseResp.StatusCode, decoded.BaseResp.StatusMsg)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("translate request: api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	for _, choice := range decoded.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", errors.New("translate request: empty content")
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			return services.Wrap(services.ErrTransient, "translate", op, "", err)
		case statusErr.StatusCode == http.StatusUnauthorized,
			statusErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "translate", op, "", err)
		default:
			return services.Wrap(services.ErrPermanent, "translate", op, "", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTransient, "translate", op, "", err)
	}

	return services.Wrap(services.ErrTransient, "translate", op, "", err)
}

func (c *Client) timeoutDuration() time.Duration {
	if c == nil || c.httpClient == nil || c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}

func (c *Client) retryAttempts() int {
	if c == nil || c.retryMaxAttempts <= 0 {
		return 1
	}
	return c.retryMaxAttempts
}

func (c *Client) retryDelay(ctx context.Context, err error, attempt, maxAttempts int) (time.Duration, bool) {
	if attempt >= maxAttempts || err == nil || ctx == nil || ctx.Err() != nil {
		return 0, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusRequestTimeout,
			statusErr.StatusCode == http.StatusTooManyRequests,
			statusErr.StatusCode >= http.StatusInternalServerError:
			if statusErr.RetryAfter > 0 {
				return c.capDelay(statusErr.RetryAfter), true
			}
			return c.backoffDelay(attempt), true
		default:
			return 0, false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return c.backoffDelay(attempt), true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return c.backoffDelay(attempt), true
	}

	return 0, false
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBaseDelay
	if base <= 0 {
		return 0
	}
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	maxDelay := c.retryMaxDelay
	if maxDelay <= 0 {
		maxDelay = defaultRetryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}
