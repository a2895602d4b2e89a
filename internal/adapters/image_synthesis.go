package adapters

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"craftai/internal/util"
	"craftai/pkg/domain"
	"craftai/pkg/storage"
)

// ImageSynthesis renders a prompt via the remote text-to-image service, then
// relocates the binary result to durable object storage and returns its
// reference.
type ImageSynthesis struct {
	renderer   ImageRenderer
	store      storage.ObjectStore
	presignTTL time.Duration
}

// NewImageSynthesis builds the image-synthesis adapter.
func NewImageSynthesis(renderer ImageRenderer, store storage.ObjectStore, presignTTL time.Duration) *ImageSynthesis {
	return &ImageSynthesis{renderer: renderer, store: store, presignTTL: presignTTL}
}

// Invoke renders and stores one image. The returned StorageKey lets the
// caller reclaim the object if the ledger append fails afterwards.
func (a *ImageSynthesis) Invoke(ctx context.Context, req domain.GenerationRequest) (domain.ProviderResult, error) {
	data, err := a.renderer.TextToImage(ctx, req.Prompt)
	if err != nil {
		return domain.ProviderResult{}, fmt.Errorf("render image: %w", err)
	}
	key := "generated/" + util.NewID() + ".png"
	if err := a.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "image/png"); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("store image: %w", err)
	}
	url, err := a.store.PresignGet(ctx, key, a.presignTTL)
	if err != nil {
		return domain.ProviderResult{}, fmt.Errorf("reference image: %w", err)
	}
	return domain.ProviderResult{Content: url, StorageKey: key}, nil
}
