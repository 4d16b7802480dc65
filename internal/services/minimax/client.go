package minimax

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"dubber/internal/services"
)

const (
	defaultHTTPTimeout    = 30 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	defaultRetryBaseDelay = 2 * time.Second
	defaultRetryAttempts  = 3
)

// Config captures the runtime settings required to talk to the speech API.
type Config struct {
	APIKey         string
	GroupID        string
	BaseURL        string
	Model          string
	SampleRate     int
	Bitrate        int
	Format         string
	TimeoutSeconds int
}

// Client wraps the MiniMax t2a_v2 endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client

	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	sleeper          func(time.Duration)
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

// NewClient constructs a speech synthesis client using the supplied configuration.
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
	}
	client.cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	client.cfg.GroupID = strings.TrimSpace(cfg.GroupID)
	client.cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	client.cfg.Model = strings.TrimSpace(cfg.Model)
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = "https://api.minimax.chat/v1/t2a_v2"
	}
	if client.cfg.Model == "" {
		client.cfg.Model = "speech-02-hd"
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

// SpeechRequest describes one synthesis call.
type SpeechRequest struct {
	Text    string
	VoiceID string
	// Speed multiplies the base speaking rate; the provider accepts 0.5 to 2.0.
	Speed float64
	// Emotion is omitted from the request when empty or "auto".
	Emotion       string
	LanguageBoost string
}

// SpeechResult carries the synthesized audio and the provider-measured duration.
type SpeechResult struct {
	Audio      []byte
	DurationMS int64
	TraceID    string
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("tts request: http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

type apiStatusError struct {
	Code    int
	Message string
}

func (e *apiStatusError) Error() string {
	return fmt.Sprintf("tts request: api status %d: %s", e.Code, e.Message)
}

func (e *apiStatusError) rateLimited() bool {
	return strings.Contains(strings.ToLower(e.Message), "rate limit")
}

// Synthesize renders text to speech and returns the audio with its measured
// duration in milliseconds. Errors are tagged with the services taxonomy.
func (c *Client) Synthesize(ctx context.Context, req SpeechRequest) (SpeechResult, error) {
	var empty SpeechResult
	if strings.TrimSpace(req.Text) == "" {
		return empty, services.Wrap(services.ErrValidation, "tts", "synthesize", "text required", nil)
	}
	if strings.TrimSpace(req.VoiceID) == "" {
		return empty, services.Wrap(services.ErrConfiguration, "tts", "synthesize", "voice id required", nil)
	}
	if c.cfg.APIKey == "" {
		return empty, services.Wrap(services.ErrConfiguration, "tts", "synthesize", "api key required", nil)
	}

	payload := c.buildPayload(req)
	result, err := c.synthesizeWithRetry(ctx, payload)
	if err != nil {
		return empty, classify(err)
	}
	return result, nil
}

// HealthCheck issues a minimal synthesis request to verify credentials.
func (c *Client) HealthCheck(ctx context.Context, voiceID string) error {
	_, err := c.Synthesize(ctx, SpeechRequest{Text: "ok", VoiceID: voiceID, Speed: 1.0})
	return err
}

type speechPayload struct {
	Model         string       `json:"model"`
	Text          string       `json:"text"`
	Stream        bool         `json:"stream"`
	VoiceSetting  voiceSetting `json:"voice_setting"`
	AudioSetting  audioSetting `json:"audio_setting"`
	LanguageBoost string       `json:"language_boost,omitempty"`
	OutputFormat  string       `json:"output_format"`
}

type voiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Emotion string  `json:"emotion,omitempty"`
}

type audioSetting struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Format     string `json:"format"`
	Channel    int    `json:"channel"`
}

type speechResponse struct {
	Data struct {
		Audio string `json:"audio"`
	} `json:"data"`
	ExtraInfo struct {
		AudioLength int64 `json:"audio_length"`
	} `json:"extra_info"`
	TraceID  string `json:"trace_id"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

func (c *Client) buildPayload(req SpeechRequest) speechPayload {
	speed := req.Speed
	if speed <= 0 {
		speed = 1.0
	}
	voice := voiceSetting{VoiceID: req.VoiceID, Speed: speed}
	emotion := strings.ToLower(strings.TrimSpace(req.Emotion))
	if emotion != "" && emotion != "auto" {
		voice.Emotion = emotion
	}
	sampleRate := c.cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 32000
	}
	bitrate := c.cfg.Bitrate
	if bitrate <= 0 {
		bitrate = 128000
	}
	format := c.cfg.Format
	if format == "" {
		format = "mp3"
	}
	return speechPayload{
		Model:        c.cfg.Model,
		Text:         req.Text,
		VoiceSetting: voice,
		AudioSetting: audioSetting{
			SampleRate: sampleRate,
			Bitrate:    bitrate,
			Format:     format,
			Channel:    1,
		},
		LanguageBoost: strings.TrimSpace(req.LanguageBoost),
		OutputFormat:  "hex",
	}
}

func (c *Client) synthesizeWithRetry(ctx context.Context, payload speechPayload) (SpeechResult, error) {
	attempts := c.retryAttempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := c.sendOnce(ctx, payload)
		if err == nil {
			return result, nil
		}

		delay, retry := c.retryDelay(ctx, err, attempt, attempts)
		if !retry {
			return SpeechResult{}, err
		}
		if err := c.sleep(ctx, delay); err != nil {
			return SpeechResult{}, err
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return SpeechResult{}, fmt.Errorf("tts synthesize: failed after %d attempts: %w", attempts, lastErr)
}

func (c *Client) sendOnce(ctx context.Context, payload speechPayload) (SpeechResult, error) {
	var empty SpeechResult
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
		return empty, fmt.Errorf("tts request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return empty, fmt.Errorf("tts request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, fmt.Errorf("tts request: http error (timeout=%s): %w", c.timeoutDuration(), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, fmt.Errorf("tts request: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return empty, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}

	var decoded speechResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return empty, fmt.Errorf("tts request: decode response: %w", err)
	}
	if decoded.BaseResp.StatusCode != 0 {
		return empty, &apiStatusError{Code: decoded.BaseResp.StatusCode, Message: decoded.BaseResp.StatusMsg}
	}
	if decoded.Data.Audio == "" {
		return empty, errors.New("tts request: empty audio payload")
	}
	audio, err := hex.DecodeString(decoded.Data.Audio)
	if err != nil {
		return empty, fmt.Errorf("tts request: decode audio hex: %w", err)
	}

	traceID := decoded.TraceID
	if traceID == "" {
		traceID = resp.Header.Get("Trace-Id")
	}
	return SpeechResult{
		Audio:      audio,
		DurationMS: decoded.ExtraInfo.AudioLength,
		TraceID:    traceID,
	}, nil
}

func classify(err error) error {
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
			return services.Wrap(services.ErrTransient, "tts", "synthesize", "", err)
		case statusErr.StatusCode == http.StatusUnauthorized,
			statusErr.StatusCode == http.StatusForbidden:
			return services.Wrap(services.ErrConfiguration, "tts", "synthesize", "", err)
		default:
			return services.Wrap(services.ErrPermanent, "tts", "synthesize", "", err)
		}
	}

	var apiErr *apiStatusError
	if errors.As(err, &apiErr) {
		if apiErr.rateLimited() {
			return services.Wrap(services.ErrTransient, "tts", "synthesize", "", err)
		}
		return services.Wrap(services.ErrPermanent, "tts", "synthesize", "", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTransient, "tts", "synthesize", "", err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return services.Wrap(services.ErrTransient, "tts", "synthesize", "", err)
	}

	return services.Wrap(services.ErrTransient, "tts", "synthesize", "", err)
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

	var apiErr *apiStatusError
	if errors.As(err, &apiErr) {
		if apiErr.rateLimited() {
			return c.backoffDelay(attempt), true
		}
		return 0, false
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

	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
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
