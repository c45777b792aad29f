package reflection

import (
	"context"
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// DefaultPassMarker is the token the critique model is asked to emit when
// the candidate is satisfactory. Matching is a case-insensitive substring
// check; prefer structured CritiqueResult values where possible and treat
// the marker as the minimum compatible behavior.
const DefaultPassMarker = "PASS:"

// DefaultRubricPrompt is the system instruction for the general critic.
const DefaultRubricPrompt = `You are an expert judge evaluating AI responses. Your task is to critique the AI assistant's latest response in the conversation below.

Evaluate the response based on these criteria:
1. Accuracy - Is the information correct and factual?
2. Completeness - Does it fully address the user's query?
3. Clarity - Is the explanation clear and well-structured?
4. Helpfulness - Does it provide actionable and useful information?
5. Safety - Does it avoid harmful or inappropriate content?

If the response meets ALL criteria satisfactorily, reply with "PASS: The response is satisfactory."

If you find ANY issues with the response, do NOT reply with the pass marker. Instead, provide specific and constructive feedback so the assistant can understand exactly how to improve.`

// DefaultCodeRubricPrompt is the system instruction for the code critic.
const DefaultCodeRubricPrompt = `You are an expert software engineer evaluating code-related responses. Your task is to critique the AI assistant's latest response in the conversation below.

Evaluate the code response based on these criteria:
1. Correctness - Is the code syntactically correct and free of bugs?
2. Efficiency - Does the code use efficient algorithms and data structures?
3. Readability - Is the code well-structured and easy to understand?
4. Best Practices - Does the code follow language-specific best practices?
5. Completeness - Does it fully address the user's requirements?

If the response meets ALL criteria satisfactorily, reply with "PASS: The code is satisfactory."

If you find ANY issues with the code, do NOT reply with the pass marker. Instead, provide specific and constructive feedback so the assistant can understand exactly how to improve the code.`

// CriticConfig configures an LLM-backed critique collaborator.
type CriticConfig struct {
	// Model is the LLM used to judge candidate answers.
	Model llms.Model

	// RubricPrompt is the system instruction defining the evaluation
	// criteria. Defaults to DefaultRubricPrompt.
	RubricPrompt string

	// PassMarker is matched case-insensitively against the critique text to
	// detect acceptance. Defaults to DefaultPassMarker.
	PassMarker string
}

// NewLLMCritic returns a CritiqueFunc that asks the model to judge the last
// assistant message against the rubric and parses the verdict.
func NewLLMCritic(config CriticConfig) (CritiqueFunc, error) {
	if config.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	rubric := config.RubricPrompt
	if rubric == "" {
		rubric = DefaultRubricPrompt
	}
	marker := config.PassMarker
	if marker == "" {
		marker = DefaultPassMarker
	}

	return func(ctx context.Context, state State) (CritiqueResult, error) {
		last, ok := state.LastMessage()
		if !ok || last.Role != RoleAssistant {
			// Nothing to judge; the loop treats this as satisfactory.
			return CritiqueResult{Passed: true}, nil
		}

		prompt := fmt.Sprintf(`Please evaluate the following AI response to a user query:

User Query: %s

AI Response: %s

If the response is satisfactory, respond with %q.
If the response needs improvement, provide specific feedback on how to improve it.`,
			state.OriginalRequest(), last.Text(), marker)

		verdict, err := critiqueCall(ctx, config.Model, rubric, prompt)
		if err != nil {
			return CritiqueResult{}, err
		}

		if MarkerPassed(verdict, marker) {
			return CritiqueResult{Passed: true}, nil
		}
		return CritiqueResult{Passed: false, Feedback: verdict}, nil
	}, nil
}

// CodeCriticConfig configures a critique collaborator specialized for code.
type CodeCriticConfig struct {
	// Model is the LLM used to judge candidate answers.
	Model llms.Model

	// RubricPrompt defaults to DefaultCodeRubricPrompt.
	RubricPrompt string

	// PassMarker defaults to DefaultPassMarker.
	PassMarker string
}

// NewCodeCritic returns a CritiqueFunc for code answers: fenced code blocks
// are extracted from the candidate and listed in front of the judge so it
// reviews the code itself, not just the prose around it. Answers that
// contain no code pass immediately.
func NewCodeCritic(config CodeCriticConfig) (CritiqueFunc, error) {
	if config.Model == nil {
		return nil, fmt.Errorf("model is required")
	}
	rubric := config.RubricPrompt
	if rubric == "" {
		rubric = DefaultCodeRubricPrompt
	}
	marker := config.PassMarker
	if marker == "" {
		marker = DefaultPassMarker
	}

	return func(ctx context.Context, state State) (CritiqueResult, error) {
		last, ok := state.LastMessage()
		if !ok || last.Role != RoleAssistant {
			return CritiqueResult{Passed: true}, nil
		}

		blocks := ExtractCodeBlocks(last.Text())
		if len(blocks) == 0 {
			// Nothing to review.
			return CritiqueResult{Passed: true}, nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, `Please evaluate the following AI response to a code-related query:

User Query: %s

AI Response: %s

Extracted code blocks:
`, state.OriginalRequest(), last.Text())
		for i, block := range blocks {
			lang := block.Language
			if lang == "" {
				lang = "unknown"
			}
			fmt.Fprintf(&sb, "\nCode Block %d (%s):\n%s\n", i+1, lang, block.Code)
		}
		fmt.Fprintf(&sb, `
If the code is satisfactory, respond with %q.
If the code needs improvement, provide specific feedback on how to improve it.`, marker)

		verdict, err := critiqueCall(ctx, config.Model, rubric, sb.String())
		if err != nil {
			return CritiqueResult{}, err
		}

		if MarkerPassed(verdict, marker) {
			return CritiqueResult{Passed: true}, nil
		}
		return CritiqueResult{Passed: false, Feedback: verdict}, nil
	}, nil
}

// critiqueCall performs one judge call and returns the verdict text.
func critiqueCall(ctx context.Context, model llms.Model, rubric, prompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(rubric)},
		},
		{
			Role:  schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(prompt)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate critique: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// MarkerPassed reports whether the critique text signals acceptance: either
// the pass marker appears (case-insensitive), or the text contains an
// explicit "pass: true".
func MarkerPassed(text, marker string) bool {
	if marker == "" {
		marker = DefaultPassMarker
	}
	lower := strings.ToLower(text)
	return strings.Contains(lower, strings.ToLower(marker)) ||
		strings.Contains(lower, "pass: true")
}

// CodeBlock is a fenced code block extracted from a markdown answer.
type CodeBlock struct {
	Language string
	Code     string
}

// ExtractCodeBlocks parses text as markdown and returns its code blocks in
// document order.
func ExtractCodeBlocks(text string) []CodeBlock {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := p.Parse([]byte(text))

	var blocks []CodeBlock
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		if cb, ok := node.(*ast.CodeBlock); ok && entering {
			blocks = append(blocks, CodeBlock{
				Language: string(cb.Info),
				Code:     strings.TrimRight(string(cb.Literal), "\n"),
			})
		}
		return ast.GoToNext
	})
	return blocks
}
