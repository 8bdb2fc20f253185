package handlers

import (
	"context"

	"github.com/axioma-ai-labs/guardy/internal/adapters"
	"github.com/axioma-ai-labs/guardy/internal/adapters/llm"
)

// Assistant answers free-form questions when the bot is mentioned in one of
// the designated groups.
type Assistant interface {
	Ask(ctx context.Context, question string) (string, error)
}

// llmAssistant adapts a chat-completion backend to the Assistant surface.
type llmAssistant struct {
	model adapters.LLM
}

func NewLLMAssistant(model adapters.LLM) Assistant {
	return &llmAssistant{model: model}
}

func (a *llmAssistant) Ask(ctx context.Context, question string) (string, error) {
	resp, err := a.model.ChatCompletion(ctx, []llm.ChatCompletionMessage{
		{
			Role:    llm.RoleSystem,
			Content: "You are a concise and friendly group assistant. Answer in the language of the question.",
		},
		{
			Role:    llm.RoleUser,
			Content: question,
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
