// Package adapter bridges third-party LLM clients to reflection loop
// collaborators.
package adapter

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/smallnest/reflectgo/reflection"
)

// ChatClient is the subset of the go-openai client the adapter needs.
// *openai.Client satisfies it.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGeneratorConfig configures a go-openai backed generation step.
type OpenAIGeneratorConfig struct {
	// Client is the chat completion client.
	Client ChatClient

	// Model is the model name. Defaults to gpt-4o-mini.
	Model string

	// SystemPrompt is prepended to every call.
	// Defaults to reflection.DefaultSystemPrompt.
	SystemPrompt string
}

// NewOpenAIGenerator returns a GenerateFunc backed by a go-openai client.
func NewOpenAIGenerator(config OpenAIGeneratorConfig) (reflection.GenerateFunc, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = reflection.DefaultSystemPrompt
	}

	return func(ctx context.Context, state reflection.State) (reflection.State, error) {
		messages := make([]openai.ChatCompletionMessage, 0, len(state.Messages)+1)
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: config.SystemPrompt,
		})
		messages = append(messages, toChatMessages(state.Messages)...)

		resp, err := config.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    config.Model,
			Messages: messages,
		})
		if err != nil {
			return state, fmt.Errorf("failed to generate candidate: %w", err)
		}
		if len(resp.Choices) == 0 {
			return state, fmt.Errorf("model returned no choices")
		}

		return state.Append(reflection.AssistantMessage(resp.Choices[0].Message.Content)), nil
	}, nil
}

// OpenAICriticConfig configures a go-openai backed critique step.
type OpenAICriticConfig struct {
	// Client is the chat completion client.
	Client ChatClient

	// Model is the model name. Defaults to gpt-4o-mini.
	Model string

	// RubricPrompt defaults to reflection.DefaultRubricPrompt.
	RubricPrompt string

	// PassMarker defaults to reflection.DefaultPassMarker.
	PassMarker string
}

// NewOpenAICritic returns a CritiqueFunc backed by a go-openai client. The
// verdict is parsed with the same pass-marker rules as the langchaingo
// critic.
func NewOpenAICritic(config OpenAICriticConfig) (reflection.CritiqueFunc, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	rubric := config.RubricPrompt
	if rubric == "" {
		rubric = reflection.DefaultRubricPrompt
	}
	marker := config.PassMarker
	if marker == "" {
		marker = reflection.DefaultPassMarker
	}

	return func(ctx context.Context, state reflection.State) (reflection.CritiqueResult, error) {
		last, ok := state.LastMessage()
		if !ok || last.Role != reflection.RoleAssistant {
			return reflection.CritiqueResult{Passed: true}, nil
		}

		prompt := fmt.Sprintf(`Please evaluate the following AI response to a user query:

User Query: %s

AI Response: %s

If the response is satisfactory, respond with %q.
If the response needs improvement, provide specific feedback on how to improve it.`,
			state.OriginalRequest(), last.Text(), marker)

		resp, err := config.Client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: rubric},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return reflection.CritiqueResult{}, fmt.Errorf("failed to generate critique: %w", err)
		}
		if len(resp.Choices) == 0 {
			return reflection.CritiqueResult{}, fmt.Errorf("model returned no choices")
		}

		verdict := resp.Choices[0].Message.Content
		if reflection.MarkerPassed(verdict, marker) {
			return reflection.CritiqueResult{Passed: true}, nil
		}
		return reflection.CritiqueResult{Passed: false, Feedback: verdict}, nil
	}, nil
}

// toChatMessages flattens loop messages to chat completion messages. Only
// text blocks are carried over.
func toChatMessages(msgs []reflection.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{
			Role:    toChatRole(m.Role),
			Content: m.Text(),
		})
	}
	return out
}

func toChatRole(r reflection.Role) string {
	switch r {
	case reflection.RoleSystem:
		return openai.ChatMessageRoleSystem
	case reflection.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
