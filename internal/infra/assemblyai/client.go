package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"voice-assistant/internal/domain"
	"voice-assistant/internal/infra"
)

const DefaultBaseURL = "https://api.assemblyai.com/v2"

// Client talks to the AssemblyAI upload and transcript endpoints.
type Client struct {
	apiKey     string
	language   string
	httpClient *http.Client
	baseURL    string
	retry      infra.RetryConfig
}

func NewClient(apiKey, language string) *Client {
	return NewClientWithURL(apiKey, language, DefaultBaseURL)
}

func NewClientWithURL(apiKey, language, baseURL string) *Client {
	return &Client{
		apiKey:     apiKey,
		language:   language,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		retry:      infra.DefaultRetryConfig(),
	}
}

// WithHTTPClient swaps the transport, e.g. for a proxied client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) WithRetry(cfg infra.RetryConfig) *Client {
	c.retry = cfg
	return c
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

type transcriptRequest struct {
	AudioURL     string `json:"audio_url"`
	LanguageCode string `json:"language_code,omitempty"`
}

type transcriptResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Text   string `json:"text"`
	Error  string `json:"error"`
}

// Upload sends raw audio bytes. It is not retried.
func (c *Client) Upload(ctx context.Context, audio []byte) (domain.UploadReference, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var result uploadResponse
	if err := c.do(req, &result); err != nil {
		return "", err
	}
	if result.UploadURL == "" {
		return "", errors.New("upload response has no upload_url")
	}

	return domain.UploadReference(result.UploadURL), nil
}

func (c *Client) RequestTranscript(ctx context.Context, ref domain.UploadReference) (string, error) {
	body, err := json.Marshal(transcriptRequest{AudioURL: string(ref), LanguageCode: c.language})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var result transcriptResponse
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, &result)
	})
	if retryErr != nil {
		return "", retryErr
	}

	if result.ID == "" {
		return "", errors.New("transcript response has no id")
	}
	return result.ID, nil
}

// Transcript fetches the current status of a job once.
func (c *Client) Transcript(ctx context.Context, id string) (domain.TranscriptUpdate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.TranscriptUpdate{}, fmt.Errorf("creating request: %w", err)
	}

	var result transcriptResponse
	if err := c.do(req, &result); err != nil {
		return domain.TranscriptUpdate{}, err
	}

	return domain.TranscriptUpdate{
		Status: domain.JobStatus(result.Status),
		Text:   result.Text,
		Error:  result.Error,
	}, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if err := infra.CheckResponse("assemblyai", resp); err != nil {
		return err
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
