package llm

import (
	"context"
	"sync"
)

// MockProvider returns scripted responses in order. Once the script is
// exhausted it repeats the last entry. Used by tests and offline runs.
type MockProvider struct {
	mu      sync.Mutex
	script  []MockTurn
	pos     int
	calls   int
	lastReq Request
}

// MockTurn is one scripted outcome: a response or an error.
type MockTurn struct {
	Response *Response
	Err      error
}

// NewMockProvider creates a provider that replays the given turns.
func NewMockProvider(turns ...MockTurn) *MockProvider {
	return &MockProvider{script: turns}
}

// MockReply is shorthand for a plain-text scripted response.
func MockReply(content string) MockTurn {
	return MockTurn{Response: &Response{Content: content, FinishReason: "stop"}}
}

// MockFailure is shorthand for a scripted *ProviderError.
func MockFailure(kind ErrorKind, err error) MockTurn {
	return MockTurn{Err: &ProviderError{Provider: "mock", Kind: kind, Err: err}}
}

func (p *MockProvider) Name() string { return "mock" }

// Complete implements Provider.
func (p *MockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ProviderError{Provider: p.Name(), Kind: ErrTimeout, Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastReq = req

	if len(p.script) == 0 {
		return &Response{Content: "ok", FinishReason: "stop"}, nil
	}
	turn := p.script[p.pos]
	if p.pos < len(p.script)-1 {
		p.pos++
	}
	if turn.Err != nil {
		return nil, turn.Err
	}
	return turn.Response, nil
}

// Calls returns how many times Complete was invoked.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// LastRequest returns the most recent request seen.
func (p *MockProvider) LastRequest() Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastReq
}
