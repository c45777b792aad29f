package reflection

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// DefaultSystemPrompt seeds the generation step when no prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant. Generate a high-quality response to the user's request."

// GeneratorConfig configures an LLM-backed generation collaborator.
type GeneratorConfig struct {
	// Model is the LLM used to produce candidate answers.
	Model llms.Model

	// SystemPrompt is prepended to every model call.
	// Defaults to DefaultSystemPrompt.
	SystemPrompt string
}

// NewLLMGenerator returns a GenerateFunc that asks the model for the next
// candidate answer, seeded with the full conversation so far. Revision
// feedback arrives naturally as the trailing user message appended by the
// loop, so no separate revision prompt is needed.
func NewLLMGenerator(config GeneratorConfig) (GenerateFunc, error) {
	if config.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}

	return func(ctx context.Context, state State) (State, error) {
		prompt := make([]llms.MessageContent, 0, len(state.Messages)+1)
		prompt = append(prompt, llms.MessageContent{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(config.SystemPrompt)},
		})
		prompt = append(prompt, ToContents(state.Messages)...)

		resp, err := config.Model.GenerateContent(ctx, prompt)
		if err != nil {
			return state, fmt.Errorf("failed to generate candidate: %w", err)
		}
		if len(resp.Choices) == 0 {
			return state, fmt.Errorf("model returned no choices")
		}

		return state.Append(AssistantMessage(resp.Choices[0].Content)), nil
	}, nil
}
