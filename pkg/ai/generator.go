package ai

import "context"

// TextGenerator generates text from a system prompt, a user prompt and a
// token budget. Both hosted providers (Gemini, OpenAI-compatible) implement
// this interface; a budget of 0 lets the provider pick its default.
type TextGenerator interface {
	GenerateText(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error)
}
