package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const defaultVoice = "en-US-AriaNeural"

// SpeechEngine synthesizes speech over a streaming websocket service. The
// clip length is determined by the text and voice, not by the caller, so
// the duration argument is ignored.
type SpeechEngine struct {
	wssURL    string
	voicesURL string
	token     string
}

type speechVoice struct {
	Name      string `json:"Name"`
	ShortName string `json:"ShortName"`
	Gender    string `json:"Gender"`
	Locale    string `json:"Locale"`
}

// NewSpeechEngine verifies the service is reachable by fetching its voice
// list, then returns a reusable handle.
func NewSpeechEngine(wssURL, voicesURL, token string) (Engine, error) {
	engine := &SpeechEngine{
		wssURL:    wssURL,
		voicesURL: voicesURL,
		token:     token,
	}

	if _, err := engine.fetchVoices(); err != nil {
		return nil, fmt.Errorf("speech service: %w", err)
	}

	return engine, nil
}

func (e *SpeechEngine) Synthesize(ctx context.Context, prompt string, _ int) ([]byte, error) {
	if prompt == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("prompt cannot be empty"))
	}

	reqID := uuid.New().String()
	u, err := url.Parse(e.wssURL)
	if err != nil {
		return nil, errors.Join(ErrServiceFailure, fmt.Errorf("invalid service URL: %w", err))
	}

	q := u.Query()
	q.Set("trustedclienttoken", e.token)
	q.Set("ConnectionId", reqID)
	u.RawQuery = q.Encode()

	c, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, errors.Join(ErrNetworkFailure, fmt.Errorf("websocket connection failed with status %d: %w", resp.StatusCode, err))
		}
		return nil, errors.Join(ErrNetworkFailure, fmt.Errorf("websocket connection failed: %w", err))
	}
	defer c.Close()

	if deadline, ok := ctx.Deadline(); ok {
		c.SetReadDeadline(deadline)
		c.SetWriteDeadline(deadline)
	}

	if err := c.WriteMessage(websocket.TextMessage, []byte(buildSpeechConfigMessage())); err != nil {
		return nil, errors.Join(ErrSynthesis, fmt.Errorf("failed to send config: %w", err))
	}

	ssml := buildSSML(defaultVoice, prompt)
	if err := c.WriteMessage(websocket.TextMessage, []byte(buildSpeechMessage(reqID, ssml))); err != nil {
		return nil, errors.Join(ErrSynthesis, fmt.Errorf("failed to send SSML: %w", err))
	}

	return readAudioResponse(c)
}

func (e *SpeechEngine) fetchVoices() ([]speechVoice, error) {
	resp, err := http.Get(fmt.Sprintf("%s?trustedclienttoken=%s", e.voicesURL, e.token))
	if err != nil {
		return nil, errors.Join(ErrNetworkFailure, fmt.Errorf("failed to fetch voices: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Join(ErrServiceFailure, fmt.Errorf("service returned status %d", resp.StatusCode))
	}

	var voices []speechVoice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, errors.Join(ErrServiceFailure, fmt.Errorf("failed to decode voices response: %w", err))
	}

	return voices, nil
}

func readAudioResponse(c *websocket.Conn) ([]byte, error) {
	var audioBuffer bytes.Buffer

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			return nil, errors.Join(ErrSynthesis, fmt.Errorf("failed to read message: %w", err))
		}

		switch {
		case messageType == websocket.BinaryMessage:
			if bytes.Contains(message, []byte("Path:audio\r\n")) {
				audioData := bytes.SplitN(message, []byte("Path:audio\r\n"), 2)[1]
				if _, err := audioBuffer.Write(audioData); err != nil {
					return nil, errors.Join(ErrSynthesis, fmt.Errorf("failed to write audio data: %w", err))
				}
			}
		case bytes.Contains(message, []byte("Path:turn.end")):
			return audioBuffer.Bytes(), nil
		case bytes.Contains(message, []byte("Path:error")):
			return nil, errors.Join(ErrSynthesis, fmt.Errorf("service error: %s", string(message)))
		}
	}

	if audioBuffer.Len() == 0 {
		return nil, ErrNoAudio
	}

	return audioBuffer.Bytes(), nil
}

func buildSSML(voice, text string) string {
	return fmt.Sprintf(`<speak version='1.0' xml:lang='en-US'><voice name='%s'><prosody pitch='0Hz' rate='0%%' volume='0%%'>%s</prosody></voice></speak>`,
		voice, text)
}

func buildSpeechConfigMessage() string {
	config := map[string]interface{}{
		"context": map[string]interface{}{
			"synthesis": map[string]interface{}{
				"audio": map[string]interface{}{
					"metadataoptions": map[string]interface{}{
						"sentenceBoundaryEnabled": false,
						"wordBoundaryEnabled":     true,
					},
					"outputFormat": "audio-24khz-48kbitrate-mono-mp3",
				},
			},
		},
	}

	configJSON, _ := json.Marshal(config)
	return fmt.Sprintf("X-Timestamp:%sZ\r\nContent-Type:application/json; charset=utf-8\r\nPath:speech.config\r\n\r\n%s",
		time.Now().UTC().Format(time.RFC3339), string(configJSON))
}

func buildSpeechMessage(reqID, ssml string) string {
	return fmt.Sprintf("X-RequestId:%s\r\nContent-Type:application/ssml+xml\r\nX-Timestamp:%sZ\r\nPath:ssml\r\n\r\n%s",
		reqID, time.Now().UTC().Format(time.RFC3339), ssml)
}
