package imaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://clipdrop-api.co"

// Client calls the remote image service. All operations are multipart POSTs
// that return raw image bytes; error bodies are decoded into readable
// messages before anything reaches callers.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient constructs the image service client.
func NewClient(baseURL, apiKey string) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("image service api key required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}, nil
}

// TextToImage renders a prompt into a PNG.
func (c *Client) TextToImage(ctx context.Context, prompt string) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("prompt required")
	}
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("prompt", prompt); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}
	return c.doImage(ctx, "/text-to-image/v1", writer.FormDataContentType(), body)
}

// RemoveBackground strips the background from the supplied image.
func (c *Client) RemoveBackground(ctx context.Context, image io.Reader, filename string) ([]byte, error) {
	body, contentType, err := imageForm(image, filename, nil)
	if err != nil {
		return nil, err
	}
	return c.doImage(ctx, "/remove-background/v1", contentType, body)
}

// EraseObject inpaints the named object out of the supplied image.
func (c *Client) EraseObject(ctx context.Context, image io.Reader, filename, object string) ([]byte, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return nil, fmt.Errorf("object name required")
	}
	body, contentType, err := imageForm(image, filename, map[string]string{"object": object})
	if err != nil {
		return nil, err
	}
	return c.doImage(ctx, "/erase-object/v1", contentType, body)
}

func imageForm(image io.Reader, filename string, fields map[string]string) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image_file", filename)
	if err != nil {
		return nil, "", fmt.Errorf("build form: %w", err)
	}
	if _, err := io.Copy(part, image); err != nil {
		return nil, "", fmt.Errorf("copy image: %w", err)
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, "", fmt.Errorf("build form: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return body, writer.FormDataContentType(), nil
}

func (c *Client) doImage(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp imageErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&errResp)
		if errResp.Error != "" {
			return nil, fmt.Errorf("image service error: %s", errResp.Error)
		}
		return nil, fmt.Errorf("image service error: %s", resp.Status)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image response: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty response from image service")
	}
	return data, nil
}

type imageErrorResponse struct {
	Error string `json:"error"`
}
