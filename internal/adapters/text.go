package adapters

import (
	"context"
	"fmt"
	"strings"

	"craftai/pkg/ai"
	"craftai/pkg/domain"
)

// TextCompletion sends a prompt and token budget to the hosted language
// model and returns the raw text inline.
type TextCompletion struct {
	gen ai.TextGenerator
}

// NewTextCompletion builds the text-completion adapter.
func NewTextCompletion(gen ai.TextGenerator) *TextCompletion {
	return &TextCompletion{gen: gen}
}

// Invoke generates text for the request prompt.
func (a *TextCompletion) Invoke(ctx context.Context, req domain.GenerationRequest) (domain.ProviderResult, error) {
	text, err := a.gen.GenerateText(ctx, "", req.Prompt, req.MaxTokens)
	if err != nil {
		return domain.ProviderResult{}, fmt.Errorf("generate text: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ProviderResult{}, fmt.Errorf("language model returned no text")
	}
	return domain.ProviderResult{Content: text}, nil
}
