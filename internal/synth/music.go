package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	musicGeneratePath = "/v1/generate/music"
	musicHealthPath   = "/health"
)

// MusicEngine generates music clips through a text-to-audio inference
// sidecar. The sidecar returns raw sample frames plus a sample rate; the
// engine flattens them and encodes a WAV file.
type MusicEngine struct {
	baseURL string
	client  *http.Client
}

type musicRequest struct {
	Prompt       string `json:"prompt"`
	MaxNewTokens int    `json:"max_new_tokens"`
}

type musicResponse struct {
	// Audio is shaped [batch, channels, samples], one batch entry per
	// submitted prompt.
	Audio        [][][]float64 `json:"audio"`
	SamplingRate int           `json:"sampling_rate"`
}

// NewMusicEngine health-checks the sidecar before handing out a usable
// engine, so a dead service surfaces as an initialization failure.
func NewMusicEngine(baseURL string, timeout time.Duration) (Engine, error) {
	engine := &MusicEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}

	if err := checkHealth(engine.client, baseURL+musicHealthPath); err != nil {
		return nil, fmt.Errorf("music service: %w", err)
	}

	return engine, nil
}

func (e *MusicEngine) Synthesize(ctx context.Context, prompt string, duration int) ([]byte, error) {
	if prompt == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("prompt cannot be empty"))
	}

	body, err := json.Marshal(musicRequest{
		Prompt:       prompt,
		MaxNewTokens: duration * MusicTokensPerSecond,
	})
	if err != nil {
		return nil, errors.Join(ErrSynthesis, err)
	}

	var resp musicResponse
	if err := postJSON(ctx, e.client, e.baseURL+musicGeneratePath, body, &resp); err != nil {
		return nil, err
	}

	channels := FlattenBatch(resp.Audio)
	if len(channels) == 0 {
		return nil, ErrNoAudio
	}

	return EncodeWAV(channels, resp.SamplingRate)
}

func checkHealth(client *http.Client, url string) error {
	resp, err := client.Get(url)
	if err != nil {
		return errors.Join(ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Join(ErrServiceFailure, fmt.Errorf("health check returned status %d", resp.StatusCode))
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Join(ErrSynthesis, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return errors.Join(ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Join(ErrServiceFailure, fmt.Errorf("service returned status %d: %s", resp.StatusCode, detail))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(ErrServiceFailure, fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}
