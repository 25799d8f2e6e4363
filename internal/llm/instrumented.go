package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/seoflow-ai/seoflow/pkg/observability"
)

// InstrumentedProvider wraps a Provider with Prometheus metrics and an
// OpenTelemetry span per call.
type InstrumentedProvider struct {
	inner Provider
}

// NewInstrumentedProvider wraps inner with instrumentation.
func NewInstrumentedProvider(inner Provider) *InstrumentedProvider {
	return &InstrumentedProvider{inner: inner}
}

func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

// Complete implements Provider.
func (p *InstrumentedProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	ctx, span := observability.StartSpan(ctx, "llm.complete",
		attribute.String("llm.provider", p.inner.Name()),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.tools", len(req.Tools)),
	)
	defer span.End()

	start := time.Now()
	resp, err := p.inner.Complete(ctx, req)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		if pe, ok := AsProviderError(err); ok {
			status = string(pe.Kind)
		}
		span.SetStatus(codes.Error, err.Error())
	} else {
		observability.RecordLLMTokens(p.inner.Name(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		span.SetAttributes(
			attribute.Int("llm.usage.prompt_tokens", resp.Usage.PromptTokens),
			attribute.Int("llm.usage.completion_tokens", resp.Usage.CompletionTokens),
		)
	}
	observability.RecordLLMCall(p.inner.Name(), status, elapsed)
	return resp, err
}
