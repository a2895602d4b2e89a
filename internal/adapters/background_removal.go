package adapters

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"craftai/internal/util"
	"craftai/pkg/domain"
	"craftai/pkg/storage"
)

// BackgroundRemoval uploads the supplied image to durable storage, requests
// a background strip from the image service, and stores the derived asset.
type BackgroundRemoval struct {
	transformer ImageTransformer
	store       storage.ObjectStore
	presignTTL  time.Duration
}

// NewBackgroundRemoval builds the background-removal adapter.
func NewBackgroundRemoval(transformer ImageTransformer, store storage.ObjectStore, presignTTL time.Duration) *BackgroundRemoval {
	return &BackgroundRemoval{transformer: transformer, store: store, presignTTL: presignTTL}
}

// Invoke runs the upload-then-transform pipeline for one image.
func (a *BackgroundRemoval) Invoke(ctx context.Context, req domain.GenerationRequest) (domain.ProviderResult, error) {
	return transformPipeline(ctx, a.store, a.presignTTL, req, func(data []byte) ([]byte, error) {
		return a.transformer.RemoveBackground(ctx, bytes.NewReader(data), req.FileName)
	})
}

// transformPipeline stages the source image in object storage, applies the
// transform, stores the derived asset and returns its presigned reference.
// The derived storage key rides along in the result for orphan cleanup.
func transformPipeline(ctx context.Context, store storage.ObjectStore, presignTTL time.Duration, req domain.GenerationRequest, transform func([]byte) ([]byte, error)) (domain.ProviderResult, error) {
	data, err := os.ReadFile(req.FilePath)
	if err != nil {
		return domain.ProviderResult{}, fmt.Errorf("read staged image: %w", err)
	}
	id := util.NewID()
	sourceKey := "uploads/" + id + sourceExt(req.FileName)
	if err := store.Put(ctx, sourceKey, bytes.NewReader(data), int64(len(data)), "application/octet-stream"); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("store source image: %w", err)
	}
	derived, err := transform(data)
	if err != nil {
		return domain.ProviderResult{}, fmt.Errorf("transform image: %w", err)
	}
	derivedKey := "derived/" + id + ".png"
	if err := store.Put(ctx, derivedKey, bytes.NewReader(derived), int64(len(derived)), "image/png"); err != nil {
		return domain.ProviderResult{}, fmt.Errorf("store derived image: %w", err)
	}
	url, err := store.PresignGet(ctx, derivedKey, presignTTL)
	if err != nil {
		return domain.ProviderResult{}, fmt.Errorf("reference derived image: %w", err)
	}
	return domain.ProviderResult{Content: url, StorageKey: derivedKey}, nil
}

func sourceExt(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ".bin"
	}
	return ext
}
