package domain

import "time"

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Capability identifies one of the supported generation kinds.
type Capability string

const (
	CapabilityTextCompletion    Capability = "text-completion"
	CapabilityImageSynthesis    Capability = "image-synthesis"
	CapabilityBackgroundRemoval Capability = "background-removal"
	CapabilityObjectRemoval     Capability = "object-removal"
	CapabilityDocumentReview    Capability = "document-review"
)

// EntitlementSnapshot is the caller's plan state, read fresh per request.
// FreeUsage is only meaningful when Plan is TierFree.
type EntitlementSnapshot struct {
	Plan      Tier `json:"plan"`
	FreeUsage int  `json:"freeUsage"`
}

// GenerationRequest carries one capability invocation. Fields beyond UserID
// and Capability are capability-specific: Prompt/MaxTokens for text
// completion, Prompt/Publish for image synthesis, FilePath (+ObjectName) for
// image transforms, FilePath/FileSize for document review.
type GenerationRequest struct {
	UserID     string
	Capability Capability
	Prompt     string
	MaxTokens  int
	Publish    bool
	ObjectName string
	FilePath   string
	FileName   string
	FileSize   int64
}

// ProviderResult is a normalized adapter outcome. Content is either inline
// generated text or a URL to stored media. StorageKey, when set, names the
// object-storage key backing Content so it can be reclaimed if the ledger
// append fails afterwards.
type ProviderResult struct {
	Content    string
	StorageKey string
}

// Creation is one immutable ledger record of a successful generation.
type Creation struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Prompt    string     `json:"prompt"`
	Content   string     `json:"content"`
	Type      Capability `json:"type"`
	Publish   bool       `json:"publish"`
	CreatedAt time.Time  `json:"createdAt"`
}
