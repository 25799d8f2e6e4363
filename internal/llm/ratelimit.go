package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedProvider throttles calls to the upstream with a client-side
// token bucket. Waiting respects the caller's context deadline.
type RateLimitedProvider struct {
	inner   Provider
	limiter *rate.Limiter
}

// NewRateLimitedProvider wraps inner with a limiter allowing callsPerSecond
// sustained and burst concurrent calls.
func NewRateLimitedProvider(inner Provider, callsPerSecond float64, burst int) *RateLimitedProvider {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedProvider{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(callsPerSecond), burst),
	}
}

func (p *RateLimitedProvider) Name() string { return p.inner.Name() }

// Complete implements Provider.
func (p *RateLimitedProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: ErrTimeout, Err: err}
	}
	return p.inner.Complete(ctx, req)
}
