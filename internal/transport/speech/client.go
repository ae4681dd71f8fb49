package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultModel = "eleven_multilingual_v2"
	apiKeyHeader = "xi-api-key"
)

var ErrProviderRejected = errors.New("speech provider rejected the request")

// Sink receives synthesized audio. The presentation layer decides how to play it.
type Sink interface {
	Play(ctx context.Context, text string, audio []byte) error
}

// Client is a text-to-speech provider client (ElevenLabs compatible API).
type Client struct {
	baseURL string
	apiKey  string
	voiceID string
	sink    Sink
	http    *http.Client
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

func New(baseURL, apiKey, voiceID string, timeout time.Duration, sink Sink) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		voiceID: voiceID,
		sink:    sink,
		http:    &http.Client{Timeout: timeout},
	}
}

// Announce - synthesizes the text and hands the audio to the sink.
func (that *Client) Announce(ctx context.Context, text string) error {
	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: defaultModel,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", that.baseURL, that.voiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, that.apiKey)

	resp, err := that.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call speech provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d %s", ErrProviderRejected, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read audio: %w", err)
	}

	if that.sink == nil {
		return nil
	}

	if err = that.sink.Play(ctx, text, audio); err != nil {
		return fmt.Errorf("failed to play audio: %w", err)
	}

	return nil
}
