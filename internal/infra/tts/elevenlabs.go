package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"voice-assistant/internal/infra"
)

const (
	DefaultElevenLabsURL   = "https://api.elevenlabs.io/v1"
	DefaultElevenLabsModel = "eleven_multilingual_v2"
)

// ElevenLabsClient fetches synthesized speech as mp3.
type ElevenLabsClient struct {
	apiKey     string
	voiceID    string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewElevenLabsClient(apiKey, voiceID, model string) *ElevenLabsClient {
	return NewElevenLabsClientWithURL(apiKey, voiceID, model, DefaultElevenLabsURL)
}

func NewElevenLabsClientWithURL(apiKey, voiceID, model, baseURL string) *ElevenLabsClient {
	if model == "" {
		model = DefaultElevenLabsModel
	}
	return &ElevenLabsClient{
		apiKey:     apiKey,
		voiceID:    voiceID,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *ElevenLabsClient) WithHTTPClient(hc *http.Client) *ElevenLabsClient {
	c.httpClient = hc
	return c
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(synthesizeRequest{Text: text, ModelID: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := c.baseURL + "/text-to-speech/" + url.PathEscape(c.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if err := infra.CheckResponse("elevenlabs", resp); err != nil {
		return nil, err
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, 20*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	return audio, nil
}

// ElevenLabs synthesizes remotely and plays the result locally.
type ElevenLabs struct {
	client *ElevenLabsClient
	player *Player
}

func NewElevenLabs(client *ElevenLabsClient, player *Player) *ElevenLabs {
	return &ElevenLabs{client: client, player: player}
}

func (e *ElevenLabs) Name() string {
	return "elevenlabs"
}

func (e *ElevenLabs) Say(ctx context.Context, text string) error {
	audio, err := e.client.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("synthesizing speech: %w", err)
	}
	return e.player.Play(ctx, audio)
}
