package synth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Dispatcher owns the backend engine handles and turns a (prompt, backend)
// pair into a single audio file on disk. Engines are initialized on first
// use; a failed initialization is retried exactly once per request before
// the request fails with ErrBackendUnavailable.
type Dispatcher struct {
	audioDir  string
	logger    *log.Logger
	factories map[Backend]Factory

	mu      sync.Mutex
	engines map[Backend]Engine

	invokeMu map[Backend]*sync.Mutex
}

func NewDispatcher(audioDir string, logger *log.Logger, factories map[Backend]Factory) *Dispatcher {
	invokeMu := make(map[Backend]*sync.Mutex, len(factories))
	for b := range factories {
		invokeMu[b] = &sync.Mutex{}
	}

	return &Dispatcher{
		audioDir:  audioDir,
		logger:    logger,
		factories: factories,
		engines:   make(map[Backend]Engine, len(factories)),
		invokeMu:  invokeMu,
	}
}

// Generate synthesizes audio for the prompt with the selected backend and
// writes it under the audio directory. It returns the output filename
// (not the full path). No file is written for an unsupported backend.
func (d *Dispatcher) Generate(ctx context.Context, prompt string, backend Backend) (string, error) {
	factory, ok := d.factories[backend]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedBackend, backend)
	}

	engine, err := d.engine(backend, factory)
	if err != nil {
		return "", err
	}

	// The model handles are not assumed safe for concurrent invocation.
	d.invokeMu[backend].Lock()
	audio, err := engine.Synthesize(ctx, prompt, FixedDuration(backend))
	d.invokeMu[backend].Unlock()
	if err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", ErrNoAudio
	}

	filename := OutputFilename(backend)
	path := filepath.Join(d.audioDir, filename)

	if err := os.MkdirAll(d.audioDir, 0o755); err != nil {
		return "", errors.Join(ErrGenerationFailed, err)
	}
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", errors.Join(ErrGenerationFailed, err)
	}

	// The run only counts as a success if the file actually landed.
	if _, err := os.Stat(path); err != nil {
		return "", errors.Join(ErrGenerationFailed, err)
	}

	d.logger.Printf("audio generated and saved to %s", path)
	return filename, nil
}

// Supported reports whether the dispatcher has a factory for the backend.
func (d *Dispatcher) Supported(backend Backend) bool {
	_, ok := d.factories[backend]
	return ok
}

func (d *Dispatcher) engine(backend Backend, factory Factory) (Engine, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if engine, ok := d.engines[backend]; ok {
		return engine, nil
	}

	engine, err := factory()
	if err != nil {
		d.logger.Printf("%s engine is not loaded, attempting to reload: %v", backend, err)
		engine, err = factory()
		if err != nil {
			d.logger.Printf("%s engine failed to load after retry: %v", backend, err)
			return nil, errors.Join(ErrBackendUnavailable, err)
		}
	}

	d.engines[backend] = engine
	return engine, nil
}

// OutputFilename builds a unique name for a generated file. The uuid
// suffix keeps two requests in the same second from colliding.
func OutputFilename(backend Backend) string {
	timestamp := time.Now().Format("20060102_150405")
	suffix := uuid.New().String()[:8]
	return fmt.Sprintf("output_%s_%s_%s.wav", backend, timestamp, suffix)
}
