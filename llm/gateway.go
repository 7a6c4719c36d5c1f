package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/cortexflow/internal/cache"
	"github.com/BaSui01/cortexflow/types"
)

// GatewayConfig configures the completion gateway.
type GatewayConfig struct {
	Timeout     time.Duration // per-call timeout, default 60s
	Retries     int           // transient-error retries; 0 disables retrying
	Temperature float64       // default sampling temperature
	MaxTokens   int
	RPM         int // requests per minute, 0 = unlimited
}

// Gateway wraps a Provider with per-call timeout, exponential-backoff
// retry on transient errors, optional rate limiting and an optional
// completion cache. It is the single entry point the pipeline uses for
// text generation.
type Gateway struct {
	provider Provider
	config   GatewayConfig
	retryer  *Retryer
	limiter  *rate.Limiter
	cache    *cache.CompletionCache
	logger   *zap.Logger
}

// NewGateway creates a gateway around the given provider.
func NewGateway(provider Provider, config GatewayConfig, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Retries < 0 {
		config.Retries = 0
	}

	policy := DefaultRetryPolicy()
	policy.MaxRetries = config.Retries

	var limiter *rate.Limiter
	if config.RPM > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(config.RPM)/60.0), config.RPM)
	}

	return &Gateway{
		provider: provider,
		config:   config,
		retryer:  NewRetryer(policy, logger),
		limiter:  limiter,
		logger:   logger.With(zap.String("component", "llm_gateway")),
	}
}

// WithCache attaches a completion cache.
func (g *Gateway) WithCache(c *cache.CompletionCache) *Gateway {
	g.cache = c
	return g
}

// Provider returns the wrapped provider.
func (g *Gateway) Provider() Provider { return g.provider }

// Complete runs one completion with the gateway defaults.
func (g *Gateway) Complete(ctx context.Context, prompt string) (string, error) {
	return g.CompleteWithTemperature(ctx, prompt, g.config.Temperature)
}

// CompleteWithTemperature runs one completion with an explicit
// temperature (the neuromodulation controller adjusts it per agent).
func (g *Gateway) CompleteWithTemperature(ctx context.Context, prompt string, temperature float64) (string, error) {
	if g.cache != nil {
		if text, err := g.cache.Get(ctx, prompt); err == nil {
			g.logger.Debug("completion cache hit")
			return text, nil
		}
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", types.NewError(types.ErrCancelled, "rate limit wait cancelled").WithCause(err)
		}
	}

	req := &CompletionRequest{
		Prompt:      prompt,
		Temperature: temperature,
		MaxTokens:   g.config.MaxTokens,
	}

	start := time.Now()
	resp, err := g.retryer.Do(ctx, func() (*CompletionResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		defer cancel()
		return g.provider.Completion(callCtx, req)
	})
	if err != nil {
		g.logger.Warn("completion failed",
			zap.String("provider", g.provider.Name()),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", err
	}

	g.logger.Debug("completion ok",
		zap.String("provider", resp.Provider),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("prompt_len", len(prompt)),
		zap.Int("response_len", len(resp.Text)),
	)

	if g.cache != nil {
		g.cache.Set(ctx, prompt, resp.Text)
	}
	return resp.Text, nil
}
