// Package transcribe is a client for AssemblyAI-style asynchronous
// transcription APIs: POST /transcript to start a job, GET /transcript/{id}
// to read its status.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"podcast-digest/internal/models"
)

// APIError is a non-2xx response from the provider.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("transcription API returned %d: %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type transcriptRequest struct {
	AudioURL string `json:"audio_url"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// SubmitJob starts a transcription of the audio at audioURL and returns the job ID.
func (c *Client) SubmitJob(ctx context.Context, audioURL string) (string, error) {
	body, err := json.Marshal(transcriptRequest{AudioURL: audioURL})
	if err != nil {
		return "", err
	}
	var resp transcriptResponse
	if err := c.do(ctx, http.MethodPost, "/transcript", body, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("transcription API returned no job id")
	}
	return resp.ID, nil
}

// GetStatus reads the job and maps the provider status onto ProviderStatus.
func (c *Client) GetStatus(ctx context.Context, jobID string) (models.ProviderStatus, error) {
	var resp transcriptResponse
	if err := c.do(ctx, http.MethodGet, "/transcript/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return models.ProviderStatus{}, err
	}

	switch resp.Status {
	case "queued":
		return models.ProviderStatus{State: models.ProviderPending}, nil
	case "processing":
		return models.ProviderStatus{State: models.ProviderRunning}, nil
	case "completed":
		return models.ProviderStatus{State: models.ProviderDone, Transcript: resp.Text}, nil
	case "error":
		return models.ProviderStatus{State: models.ProviderFailed, Reason: resp.Error}, nil
	}
	return models.ProviderStatus{}, fmt.Errorf("unknown transcript status %q for job %s", resp.Status, jobID)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(data))
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
