package synth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	soundEffectGeneratePath = "/v1/generate/sound"
	soundEffectHealthPath   = "/health"
)

// SoundEffectEngine generates sound effects through an inference sidecar.
// The sidecar returns one waveform per submitted prompt; the engine
// submits exactly one prompt per call and loudness-normalizes the result
// before encoding.
type SoundEffectEngine struct {
	baseURL string
	client  *http.Client
}

type soundEffectRequest struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

type soundEffectResponse struct {
	// Audio is shaped [batch, channels, samples].
	Audio      [][][]float64 `json:"audio"`
	SampleRate int           `json:"sample_rate"`
}

func NewSoundEffectEngine(baseURL string, timeout time.Duration) (Engine, error) {
	engine := &SoundEffectEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}

	if err := checkHealth(engine.client, baseURL+soundEffectHealthPath); err != nil {
		return nil, fmt.Errorf("sound-effect service: %w", err)
	}

	return engine, nil
}

func (e *SoundEffectEngine) Synthesize(ctx context.Context, prompt string, duration int) ([]byte, error) {
	if prompt == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("prompt cannot be empty"))
	}

	body, err := json.Marshal(soundEffectRequest{
		Prompt:   prompt,
		Duration: duration,
	})
	if err != nil {
		return nil, errors.Join(ErrSynthesis, err)
	}

	var resp soundEffectResponse
	if err := postJSON(ctx, e.client, e.baseURL+soundEffectGeneratePath, body, &resp); err != nil {
		return nil, err
	}

	channels := FlattenBatch(resp.Audio)
	if len(channels) == 0 {
		return nil, ErrNoAudio
	}

	processed := make([][]float64, len(channels))
	for i, ch := range channels {
		processed[i] = NormalizeLoudness(ch)
	}

	return EncodeWAV(processed, resp.SampleRate)
}
