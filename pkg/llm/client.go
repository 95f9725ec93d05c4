package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/botfactory/internal/logging"
	"github.com/aretw0/botfactory/pkg/breaker"
	"github.com/aretw0/botfactory/pkg/domain"
	"github.com/aretw0/botfactory/pkg/observability"
	"github.com/aretw0/botfactory/pkg/ports"
)

// Config holds the backend and policy settings. Zero fields take the defaults.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   int
	TopP        float64

	Timeout    time.Duration
	MaxRetries int
	CacheTTL   time.Duration

	RateLimit        int
	RateWindow       time.Duration
	DailyTokenBudget int64
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Temperature == nil {
		t := 0.7
		c.Temperature = &t
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 512
	}
	if c.TopP == 0 {
		c.TopP = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 15 * time.Minute
	}
	if c.RateLimit <= 0 {
		c.RateLimit = 10
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Minute
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// Request is one completion call.
type Request struct {
	System string
	User   string
	// Temperature and MaxTokens override the configured values when set.
	Temperature *float64
	MaxTokens   int
	// NoCache skips both cache lookup and cache write.
	NoCache bool
	// Tools disables caching when present; they are forwarded verbatim.
	Tools []any

	BotID  string
	UserID string

	// RejectHarmful turns a harmful response match into ErrUnsafeResponse.
	RejectHarmful bool
}

// Usage is the token accounting of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// Response is the outcome of a completion.
type Response struct {
	Content  string        `json:"content"`
	Usage    Usage         `json:"usage"`
	Cached   bool          `json:"-"`
	Duration time.Duration `json:"-"`
	// Fallback marks the fixed text returned while the tenant circuit is open.
	Fallback bool `json:"-"`
}

// Client talks to an OpenAI compatible chat-completions endpoint.
type Client struct {
	cfg  Config
	http *http.Client

	limiter ports.WindowLimiter
	budget  ports.TokenBudget
	cache   ports.ResponseCache
	breaker *breaker.Breaker

	logger  *slog.Logger
	metrics *observability.Recorder
	now     func() time.Time
	sleep   func(context.Context, time.Duration) error
}

// Option configures the Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithLimiter(limiter ports.WindowLimiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

func WithBudget(budget ports.TokenBudget) Option {
	return func(c *Client) {
		c.budget = budget
	}
}

func WithCache(cache ports.ResponseCache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithBreaker gates backend calls with the per-bot circuit breaker.
func WithBreaker(b *breaker.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithMetrics(metrics *observability.Recorder) Option {
	return func(c *Client) {
		c.metrics = metrics
	}
}

// WithClock replaces time.Now, used for budget days.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// WithSleep replaces the backoff wait between attempts.
func WithSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		c.sleep = sleep
	}
}

// NewClient creates a Client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logging.NewNop(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Complete runs the completion pipeline. While the bot's circuit is open it returns the
// fixed unavailable text with Fallback set instead of an error.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if err := c.checkPrompt(req); err != nil {
		c.metrics.LLMRequest("rejected")
		return nil, err
	}

	if err := c.checkPolicy(ctx, req); err != nil {
		c.metrics.LLMRequest("limited")
		return nil, err
	}

	temperature := *c.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	maxTokens := c.cfg.MaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	useCache := c.cache != nil && !req.NoCache && len(req.Tools) == 0
	key := cacheKey(req.System, req.User, temperature, maxTokens)
	if useCache {
		if resp, ok := c.cached(ctx, key); ok {
			resp.Duration = time.Since(start)
			c.metrics.LLMCacheHit()
			c.metrics.LLMRequest("cached")
			return resp, nil
		}
	}

	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		TopP:        c.cfg.TopP,
		Tools:       req.Tools,
	}

	call := func(ctx context.Context) (*Response, error) { return c.callWithRetry(ctx, body) }
	var resp *Response
	var err error
	if c.breaker != nil && req.BotID != "" {
		resp, err = breaker.Run(ctx, c.breaker, req.BotID, call)
	} else {
		resp, err = call(ctx)
	}
	if errors.Is(err, breaker.ErrOpen) {
		c.metrics.LLMRequest("circuit_open")
		return &Response{Content: domain.TextUnavailable, Fallback: true, Duration: time.Since(start)}, nil
	}
	if err != nil {
		c.metrics.LLMRequest("error")
		return nil, err
	}

	harmful, pii := ScanResponse(resp.Content)
	if len(pii) > 0 {
		c.logger.Warn("llm response contains pii", "bot_id", req.BotID, "kinds", pii)
	}
	if len(harmful) > 0 {
		c.logger.Warn("llm response matched harmful pattern", "bot_id", req.BotID, "patterns", harmful)
		if req.RejectHarmful {
			c.metrics.LLMRequest("unsafe")
			return nil, ErrUnsafeResponse
		}
	}

	resp.Duration = time.Since(start)
	c.metrics.LLMDuration(resp.Duration)
	c.metrics.LLMRequest("ok")
	c.metrics.LLMTokens(req.BotID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	if useCache {
		if data, err := json.Marshal(resp); err == nil {
			if err := c.cache.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
				c.logger.Warn("llm cache write failed", "err", err)
			}
		}
	}
	if c.budget != nil && req.BotID != "" && resp.Usage.Total() > 0 {
		if err := c.budget.Add(ctx, req.BotID, int64(resp.Usage.Total()), c.now()); err != nil {
			c.logger.Warn("llm budget accounting failed", "bot_id", req.BotID, "err", err)
		}
	}
	return resp, nil
}

func (c *Client) checkPrompt(req Request) error {
	for _, text := range []string{req.System, req.User} {
		score, pattern := ScorePrompt(text)
		if score >= RejectScore {
			c.logger.Warn("llm prompt rejected", "bot_id", req.BotID, "user_id", req.UserID, "score", score, "pattern", pattern)
			return &PromptRejectedError{Pattern: pattern, Score: score}
		}
	}
	return nil
}

// checkPolicy verifies the budget first so a refused call never consumes window quota.
func (c *Client) checkPolicy(ctx context.Context, req Request) error {
	if req.BotID == "" || req.UserID == "" {
		return nil
	}
	if c.budget != nil && c.cfg.DailyTokenBudget > 0 {
		used, err := c.budget.Used(ctx, req.BotID, c.now())
		switch {
		case err != nil:
			c.logger.Warn("llm budget check bypassed", "bot_id", req.BotID, "err", err)
		case used >= c.cfg.DailyTokenBudget:
			return fmt.Errorf("%w: bot %s used %d of %d tokens", ErrBudgetExceeded, req.BotID, used, c.cfg.DailyTokenBudget)
		}
	}
	if c.limiter != nil {
		ok, err := c.limiter.Allow(ctx, req.BotID+":"+req.UserID, c.cfg.RateLimit, c.cfg.RateWindow)
		switch {
		case err != nil:
			c.logger.Warn("llm rate limit check bypassed", "bot_id", req.BotID, "err", err)
		case !ok:
			return fmt.Errorf("%w: %d requests per %s", ErrRateLimited, c.cfg.RateLimit, c.cfg.RateWindow)
		}
	}
	return nil
}

func (c *Client) cached(ctx context.Context, key string) (*Response, bool) {
	data, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("llm cache read failed", "err", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, false
	}
	resp.Cached = true
	return &resp, true
}

func cacheKey(system, user string, temperature float64, maxTokens int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%g\x00%d", system, user, temperature, maxTokens)
	return hex.EncodeToString(h.Sum(nil))
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
	Tools       []any         `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func (c *Client) callWithRetry(ctx context.Context, body chatRequest) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var last error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, time.Duration(1<<(attempt-1))*time.Second); err != nil {
				return nil, &UpstreamError{Attempts: attempt, Last: err}
			}
		}
		resp, err := c.call(ctx, payload)
		if err == nil {
			return resp, nil
		}
		last = err
		if isTimeout(err) {
			c.metrics.LLMRequest("timeout")
		}
		c.logger.Debug("llm attempt failed", "attempt", attempt+1, "err", err)
	}
	return nil, &UpstreamError{Attempts: c.cfg.MaxRetries, Last: last}
}

func (c *Client) call(ctx context.Context, payload []byte) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Code: res.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("response has no choices")
	}
	return &Response{Content: out.Choices[0].Message.Content, Usage: out.Usage}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Health probes GET {base_url}/health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("llm health probe failed: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)
	if res.StatusCode != http.StatusOK {
		return &StatusError{Code: res.StatusCode}
	}
	return nil
}
