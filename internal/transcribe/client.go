// Package transcribe calls the external speech-to-text service per chunk
// and fans chunk processing out under a fixed concurrency limit.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/voxnote/voxnote-api/internal/config"
	"github.com/voxnote/voxnote-api/internal/platform/logger"
	"github.com/voxnote/voxnote-api/internal/retry"
)

// Client transcribes one chunk file through the remote service.
type Client interface {
	// UploadAndTranscribe uploads the chunk and returns its transcript.
	UploadAndTranscribe(ctx context.Context, jobID int64, chunkPath string) (string, error)
}

// HTTPClient implements Client against the speech-to-text HTTP API:
// upload a file for an opaque reference, then request a transcript for it.
// Each remote call is independently retried per the transient/permanent
// classification.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	policy  retry.Policy
}

// NewHTTPClient builds a client from config.
func NewHTTPClient(cfg config.TranscriptionConfig, maxRetries int) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		policy:  retry.Policy{MaxRetries: maxRetries},
	}
}

// UploadAndTranscribe uploads the chunk and returns its transcript.
func (c *HTTPClient) UploadAndTranscribe(ctx context.Context, jobID int64, chunkPath string) (string, error) {
	log := logger.FromContext(ctx)

	var fileRef string
	err := retry.Do(ctx, c.policy, retry.ClassifyRemote, func(ctx context.Context) error {
		ref, err := c.upload(ctx, chunkPath)
		if err != nil {
			return err
		}
		fileRef = ref
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chunk upload failed: %w", err)
	}

	log.Debug("chunk uploaded", "job_id", jobID, "file_ref", fileRef)

	var transcript string
	err = retry.Do(ctx, c.policy, retry.ClassifyRemote, func(ctx context.Context) error {
		text, err := c.transcribe(ctx, fileRef)
		if err != nil {
			return err
		}
		transcript = text
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	return transcript, nil
}

// upload posts the chunk file and returns the service's opaque reference.
func (c *HTTPClient) upload(ctx context.Context, chunkPath string) (string, error) {
	file, err := os.Open(chunkPath)
	if err != nil {
		return "", fmt.Errorf("failed to open chunk file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(chunkPath))
	if err != nil {
		return "", fmt.Errorf("failed to create multipart field: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to copy chunk into request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var result struct {
		FileID string `json:"file_id"`
	}
	if err := c.doJSON(req, "upload", &result); err != nil {
		return "", err
	}

	if result.FileID == "" {
		return "", &retry.RemoteError{Op: "upload", StatusCode: 0, Message: "response missing file_id"}
	}

	return result.FileID, nil
}

// transcribe requests a transcript for an uploaded file reference.
func (c *HTTPClient) transcribe(ctx context.Context, fileRef string) (string, error) {
	payload, err := json.Marshal(map[string]string{"file_id": fileRef})
	if err != nil {
		return "", fmt.Errorf("failed to marshal transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/transcripts", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	var result struct {
		Text string `json:"text"`
	}
	if err := c.doJSON(req, "transcribe", &result); err != nil {
		return "", err
	}

	return result.Text, nil
}

// doJSON executes the request and decodes a 2xx JSON body into out.
// Non-2xx statuses become RemoteError so the retry classifier can decide.
func (c *HTTPClient) doJSON(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &retry.RemoteError{Op: op, StatusCode: 0, Message: err.Error()}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &retry.RemoteError{Op: op, StatusCode: resp.StatusCode, Message: string(snippet)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &retry.RemoteError{Op: op, StatusCode: 0, Message: "invalid response body: " + err.Error()}
	}

	return nil
}
