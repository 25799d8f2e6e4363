package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Circuit breaker defaults.
const (
	defaultBreakerMaxFailures uint32        = 5
	defaultBreakerTimeout     time.Duration = 30 * time.Second
	defaultBreakerInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker wrapper.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the circuit.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period for clearing failure counts while closed.
	Interval time.Duration `yaml:"interval"`
}

// BreakerProvider wraps a Provider with a circuit breaker. When the upstream
// fails repeatedly the circuit opens and calls fail fast, preventing retry
// storms against an already degraded provider.
type BreakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[*Response]
}

// NewBreakerProvider wraps inner with a circuit breaker. Zero-valued config
// fields fall back to defaults.
func NewBreakerProvider(inner Provider, cfg BreakerConfig, logger *slog.Logger) *BreakerProvider {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultBreakerMaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultBreakerTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultBreakerInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "llm:" + inner.Name(),
		MaxRequests: 1, // one probe while half-open
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Content-policy rejections are the caller's problem, not a sign
			// of provider degradation.
			if pe, ok := AsProviderError(err); ok && pe.Kind == ErrContentPolicy {
				return true
			}
			return false
		},
	})

	return &BreakerProvider{inner: inner, breaker: cb}
}

func (p *BreakerProvider) Name() string { return p.inner.Name() }

// Complete implements Provider. An open circuit surfaces as a retryable
// upstream error.
func (p *BreakerProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	resp, err := p.breaker.Execute(func() (*Response, error) {
		return p.inner.Complete(ctx, req)
	})
	if err != nil {
		if _, ok := AsProviderError(err); ok {
			return nil, err
		}
		return nil, &ProviderError{Provider: p.Name(), Kind: ErrUpstream, Err: err}
	}
	return resp, nil
}
