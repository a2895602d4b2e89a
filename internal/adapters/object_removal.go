package adapters

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"craftai/pkg/domain"
	"craftai/pkg/storage"
)

// ObjectRemoval uploads the supplied image, then asks the image service to
// inpaint the named object away. The object name must already have passed
// single-token validation; the guard here is a cheap invariant check.
type ObjectRemoval struct {
	transformer ImageTransformer
	store       storage.ObjectStore
	presignTTL  time.Duration
}

// NewObjectRemoval builds the object-removal adapter.
func NewObjectRemoval(transformer ImageTransformer, store storage.ObjectStore, presignTTL time.Duration) *ObjectRemoval {
	return &ObjectRemoval{transformer: transformer, store: store, presignTTL: presignTTL}
}

// Invoke runs the upload-then-erase pipeline for one image.
func (a *ObjectRemoval) Invoke(ctx context.Context, req domain.GenerationRequest) (domain.ProviderResult, error) {
	object := strings.TrimSpace(req.ObjectName)
	if len(strings.Fields(object)) != 1 {
		return domain.ProviderResult{}, fmt.Errorf("object name must be a single word")
	}
	return transformPipeline(ctx, a.store, a.presignTTL, req, func(data []byte) ([]byte, error) {
		return a.transformer.EraseObject(ctx, bytes.NewReader(data), req.FileName, object)
	})
}
