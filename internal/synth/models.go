package synth

import (
	"context"
	"errors"
)

// Backend selects which generation capability serves a request.
type Backend string

const (
	BackendMusic       Backend = "music"
	BackendSoundEffect Backend = "sound-effect"
	BackendSpeech      Backend = "speech"
	BackendPredefined  Backend = "predefined"
)

const (
	// MusicDuration is the fixed length of generated music clips, in seconds.
	MusicDuration = 10
	// SoundEffectDuration is the fixed length of generated effects, in seconds.
	SoundEffectDuration = 6
	// MusicTokensPerSecond converts a duration into the token budget sent
	// to the music model.
	MusicTokensPerSecond = 50
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrUnsupportedBackend = errors.New("unsupported backend")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrGenerationFailed   = errors.New("generation produced no output file")
	ErrServiceFailure     = errors.New("service failure")
	ErrNetworkFailure     = errors.New("network failure")
	ErrSynthesis          = errors.New("synthesis error")
	ErrNoAudio            = errors.New("no audio data received")
)

// Engine is a single generation capability. Synthesize returns encoded
// audio bytes ready to be written to disk. Engines are shared handles;
// the dispatcher serializes calls on each one.
type Engine interface {
	Synthesize(ctx context.Context, prompt string, duration int) ([]byte, error)
}

// Factory builds an engine handle, performing whatever initialization the
// underlying capability needs. A factory that returns an error may be
// called again (the dispatcher retries initialization once per request).
type Factory func() (Engine, error)

// FixedDuration returns the fixed clip length for a backend, or 0 when
// the backend's output length is not controllable.
func FixedDuration(b Backend) int {
	switch b {
	case BackendMusic:
		return MusicDuration
	case BackendSoundEffect:
		return SoundEffectDuration
	default:
		return 0
	}
}
