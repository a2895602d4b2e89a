// Package adapters normalizes the heterogeneous external generation services
// into one invoke contract per capability. Each adapter owns its remote
// pipeline end to end and returns either a usable result or an error; nothing
// provider-specific leaks past this boundary.
package adapters

import (
	"context"
	"io"
)

// ImageRenderer turns a text prompt into raw image bytes.
type ImageRenderer interface {
	TextToImage(ctx context.Context, prompt string) ([]byte, error)
}

// ImageTransformer derives a new image from an uploaded one.
type ImageTransformer interface {
	RemoveBackground(ctx context.Context, image io.Reader, filename string) ([]byte, error)
	EraseObject(ctx context.Context, image io.Reader, filename, object string) ([]byte, error)
}

// Extractor pulls plain text out of an uploaded document.
type Extractor interface {
	ExtractText(path string) (string, error)
}
