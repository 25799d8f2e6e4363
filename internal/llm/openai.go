package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// chatCompleter is the slice of the OpenAI client the provider uses, kept as
// an interface for testability.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIProvider adapts the OpenAI chat completion API to the Provider
// interface.
type OpenAIProvider struct {
	client       chatCompleter
	defaultModel string
}

// NewOpenAIProvider creates a provider backed by the OpenAI API.
func NewOpenAIProvider(apiKey, defaultModel string) *OpenAIProvider {
	return &OpenAIProvider{
		client:       openai.NewClient(apiKey),
		defaultModel: defaultModel,
	}
}

// NewOpenAIProviderWithClient creates a provider with a custom client.
func NewOpenAIProviderWithClient(client chatCompleter, defaultModel string) *OpenAIProvider {
	return &OpenAIProvider{client: client, defaultModel: defaultModel}
}

func (p *OpenAIProvider) Name() string { return "openai" }

// Complete implements Provider.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
			Name:    m.Name,
		})
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Tools:       tools,
	})
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Kind: ErrUpstream, Err: errors.New("no choices in response")}
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	if choice.FinishReason == openai.FinishReasonContentFilter {
		return nil, &ProviderError{
			Provider: p.Name(),
			Kind:     ErrContentPolicy,
			Err:      fmt.Errorf("completion stopped by content filter"),
		}
	}
	return out, nil
}

// wrapError maps OpenAI client failures onto the ProviderError taxonomy.
func (p *OpenAIProvider) wrapError(err error) error {
	kind := ErrTransport
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrTimeout
	case errors.Is(err, context.Canceled):
		kind = ErrTimeout
	default:
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			switch {
			case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
				kind = ErrRateLimit
			case apiErr.HTTPStatusCode >= 500:
				kind = ErrUpstream
			case isContentPolicyCode(apiErr):
				kind = ErrContentPolicy
			default:
				kind = ErrUpstream
			}
		}
	}
	return &ProviderError{Provider: p.Name(), Kind: kind, Err: err}
}

func isContentPolicyCode(apiErr *openai.APIError) bool {
	code, ok := apiErr.Code.(string)
	if !ok {
		return false
	}
	return strings.Contains(code, "content_policy") || strings.Contains(code, "content_filter")
}
