// Package llm adapts the teacher's chatgpt client to the coursesage tool-aware
// LLM collaborator.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/yanqian/ai-helloworld/internal/domain/coursesage"
	"github.com/yanqian/ai-helloworld/internal/infra/llm/chatgpt"
	"github.com/yanqian/ai-helloworld/pkg/metrics"
)

// Adapter implements coursesage.LLM against the OpenAI-compatible chat client.
type Adapter struct {
	client *chatgpt.Client
	model  string
	logger *slog.Logger
}

// New constructs an Adapter.
func New(client *chatgpt.Client, model string, logger *slog.Logger) *Adapter {
	return &Adapter{client: client, model: model, logger: logger.With("component", "llm")}
}

// Complete implements coursesage.LLM.
func (a *Adapter) Complete(ctx context.Context, req coursesage.LLMRequest) (coursesage.LLMResponse, error) {
	messages := make([]chatgpt.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, chatgpt.Message{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, toWireMessage(m))
	}

	resp, err := a.client.CreateChatCompletion(ctx, chatgpt.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: 0.2,
		Tools:       toWireTools(req.Tools),
	})
	if err != nil {
		return coursesage.LLMResponse{}, coursesage.WrapTransient("chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return coursesage.LLMResponse{}, coursesage.WrapFatalExternal("chat completion returned no choices", nil)
	}

	usage := metrics.TokenUsage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	if !usage.IsZero() {
		a.logger.Debug("chat completion usage", "prompt_tokens", usage.PromptTokens, "completion_tokens", usage.CompletionTokens, "total_tokens", usage.TotalTokens)
	}

	msg := resp.Choices[0].Message
	calls := make([]coursesage.ToolCall, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		calls[i] = coursesage.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
	}
	return coursesage.LLMResponse{Content: msg.Content, ToolCalls: calls}, nil
}

func toWireMessage(m coursesage.ConversationMessage) chatgpt.Message {
	wire := chatgpt.Message{Role: string(m.Role), Content: m.Content, ToolCallID: m.ToolCallID}
	for _, tc := range m.ToolCalls {
		wire.ToolCalls = append(wire.ToolCalls, chatgpt.ToolCall{
			ID:   tc.ID,
			Type: "function",
			Function: chatgpt.ToolCallDefinition{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		})
	}
	return wire
}

func toWireTools(tools []coursesage.LLMTool) []chatgpt.Tool {
	out := make([]chatgpt.Tool, len(tools))
	for i, t := range tools {
		out[i] = chatgpt.Tool{
			Type: "function",
			Function: chatgpt.ToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// FallbackLLM answers with a fixed notice that no provider is configured,
// quoting the start of the last message, and never calls tools. Used when
// no chat provider is configured, so the service still boots.
type FallbackLLM struct{}

// Complete implements coursesage.LLM.
func (FallbackLLM) Complete(_ context.Context, req coursesage.LLMRequest) (coursesage.LLMResponse, error) {
	last := ""
	if len(req.Messages) > 0 {
		last = req.Messages[len(req.Messages)-1].Content
	}
	return coursesage.LLMResponse{
		Content: fmt.Sprintf("No language model provider is configured; cannot answer %q.", truncate(last, 80)),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
