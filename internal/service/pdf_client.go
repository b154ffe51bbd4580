package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// PDFClient talks to the upstream PDF-processing service. The service does
// the heavy lifting (merging, rasterizing, signing, text extraction and the
// AI summarize/image-prompt calls); this client is a plain request/response
// consumer of it.
type PDFClient interface {
	Merge(ctx context.Context, files map[string][]byte) ([]byte, error)
	Convert(ctx context.Context, filename string, file []byte, format string) ([]byte, error)
	Sign(ctx context.Context, filename string, file, signature []byte, page int) ([]byte, error)
	Summarize(ctx context.Context, filename string, file []byte) (string, error)
	ImagePrompt(ctx context.Context, filename string, image []byte) (string, error)
}

type pdfClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewPDFClient creates a PDFClient for the given base URL.
func NewPDFClient(baseURL string, timeout time.Duration, logger zerolog.Logger) PDFClient {
	return &pdfClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("service", "PDFClient").Logger(),
	}
}

// postFiles sends the files as multipart/form-data with the extra fields and
// returns the raw response body.
func (c *pdfClient) postFiles(ctx context.Context, endpoint string, files map[string][]byte, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			return nil, fmt.Errorf("creating form file %s: %w", name, err)
		}
		if _, err := part.Write(data); err != nil {
			return nil, fmt.Errorf("writing form file %s: %w", name, err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("writing form field %s: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling PDF service %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Error().Int("status", resp.StatusCode).Str("endpoint", endpoint).Msg("PDF service returned an error")
		return nil, fmt.Errorf("PDF service %s returned %d: %s", endpoint, resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

func (c *pdfClient) Merge(ctx context.Context, files map[string][]byte) ([]byte, error) {
	return c.postFiles(ctx, "/merge", files, nil)
}

func (c *pdfClient) Convert(ctx context.Context, filename string, file []byte, format string) ([]byte, error) {
	return c.postFiles(ctx, "/convert", map[string][]byte{filename: file}, map[string]string{"format": format})
}

func (c *pdfClient) Sign(ctx context.Context, filename string, file, signature []byte, page int) ([]byte, error) {
	return c.postFiles(ctx, "/sign", map[string][]byte{filename: file, "signature.png": signature}, map[string]string{"page": fmt.Sprintf("%d", page)})
}

func (c *pdfClient) Summarize(ctx context.Context, filename string, file []byte) (string, error) {
	body, err := c.postFiles(ctx, "/summarize", map[string][]byte{filename: file}, nil)
	if err != nil {
		return "", err
	}
	return decodeTextResult(body)
}

func (c *pdfClient) ImagePrompt(ctx context.Context, filename string, image []byte) (string, error) {
	body, err := c.postFiles(ctx, "/image-prompt", map[string][]byte{filename: image}, nil)
	if err != nil {
		return "", err
	}
	return decodeTextResult(body)
}

func decodeTextResult(body []byte) (string, error) {
	var out struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding PDF service response: %w", err)
	}
	return out.Result, nil
}
