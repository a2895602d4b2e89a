package adapters

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"craftai/pkg/ai"
	"craftai/pkg/domain"
)

// ErrDocumentTooShort is returned before any language-model call when the
// extracted document text is under the review minimum.
var ErrDocumentTooShort = errors.New("document text is empty or too short")

const (
	// minReviewChars is the minimum extracted length worth reviewing.
	minReviewChars = 100
	// reviewMaxTokens caps the review response budget.
	reviewMaxTokens = 1000
)

const reviewSystemPrompt = "You are a professional reviewer and career consultant."

// DocumentReview extracts plain text from an uploaded document and asks the
// language model for a structured review.
type DocumentReview struct {
	gen       ai.TextGenerator
	extractor Extractor
}

// NewDocumentReview builds the document-review adapter. A nil extractor
// defaults to PDF extraction.
func NewDocumentReview(gen ai.TextGenerator, extractor Extractor) *DocumentReview {
	if extractor == nil {
		extractor = PDFExtractor{}
	}
	return &DocumentReview{gen: gen, extractor: extractor}
}

// Invoke extracts, gates on length, and reviews the document.
func (a *DocumentReview) Invoke(ctx context.Context, req domain.GenerationRequest) (domain.ProviderResult, error) {
	text, err := a.extractor.ExtractText(req.FilePath)
	if err != nil {
		return domain.ProviderResult{}, fmt.Errorf("extract document text: %w", err)
	}
	text = strings.TrimSpace(text)
	if len(text) < minReviewChars {
		return domain.ProviderResult{}, ErrDocumentTooShort
	}
	review, err := a.gen.GenerateText(ctx, reviewSystemPrompt, reviewPrompt(text), reviewMaxTokens)
	if err != nil {
		return domain.ProviderResult{}, fmt.Errorf("generate review: %w", err)
	}
	review = strings.TrimSpace(review)
	if review == "" {
		return domain.ProviderResult{}, fmt.Errorf("language model returned no review")
	}
	return domain.ProviderResult{Content: review}, nil
}

func reviewPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("Review the following document and provide:\n\n")
	sb.WriteString("- **Summary**\n")
	sb.WriteString("- **Strengths**\n")
	sb.WriteString("- **Weaknesses**\n")
	sb.WriteString("- **Recommendations**\n\n")
	sb.WriteString("Document content:\n")
	sb.WriteString(text)
	return sb.String()
}
