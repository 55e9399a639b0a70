package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"soundscape/internal/cache"
	"soundscape/internal/data"
	"soundscape/internal/synth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUser struct {
	id       uint
	password string
}

type fakeStore struct {
	users      map[string]fakeUser
	prompts    map[uint]data.Prompt
	nextUser   uint
	nextPrompt uint
	failWith   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]fakeUser),
		prompts: make(map[uint]data.Prompt),
	}
}

func (f *fakeStore) RegisterUser(email, password string) (uint, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	if _, ok := f.users[email]; ok {
		return 0, data.ErrDuplicateEmail
	}
	f.nextUser++
	f.users[email] = fakeUser{id: f.nextUser, password: password}
	return f.nextUser, nil
}

func (f *fakeStore) AuthenticateUser(email, password string) (uint, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	user, ok := f.users[email]
	if !ok || user.password != password {
		return 0, data.ErrInvalidCredentials
	}
	return user.id, nil
}

func (f *fakeStore) CreatePrompt(userID uint, prompt, audioFilePath, model string) (uint, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	f.nextPrompt++
	f.prompts[f.nextPrompt] = data.Prompt{
		ID:            f.nextPrompt,
		UserID:        userID,
		Prompt:        prompt,
		AudioFilePath: audioFilePath,
		Model:         model,
		CreatedAt:     time.Now().Add(time.Duration(f.nextPrompt) * time.Millisecond),
	}
	return f.nextPrompt, nil
}

func (f *fakeStore) ListPrompts(userID uint) ([]data.Prompt, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	var out []data.Prompt
	for _, p := range f.prompts {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeStore) DeletePrompt(userID, promptID uint) error {
	p, ok := f.prompts[promptID]
	if !ok || p.UserID != userID {
		return data.ErrNotFound
	}
	delete(f.prompts, promptID)
	return nil
}

type fakeSynth struct {
	calls int
	err   error
}

func (f *fakeSynth) Generate(_ context.Context, _ string, backend synth.Backend) (string, error) {
	if !f.Supported(backend) {
		return "", fmt.Errorf("%w: %s", synth.ErrUnsupportedBackend, backend)
	}
	if f.err != nil {
		return "", f.err
	}
	f.calls++
	return fmt.Sprintf("output_%s_fake_%d.wav", backend, f.calls), nil
}

func (f *fakeSynth) Supported(backend synth.Backend) bool {
	switch backend {
	case synth.BackendMusic, synth.BackendSoundEffect, synth.BackendSpeech:
		return true
	default:
		return false
	}
}

func newTestServer(t *testing.T, store Store, synthesizer Synthesizer) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	config := &ServerConfig{
		Environment:    "development",
		AllowedOrigins: []string{"*"},
		AudioDir:       t.TempDir(),
		PublicBaseURL:  "http://localhost:5000",
		SynthTimeout:   time.Second,
	}

	return NewServer(config, store, synthesizer, cache.New(), log.New(io.Discard, "", 0))
}

func doJSON(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestIndexGreeting(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeSynth{})

	w := doJSON(s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Welcome")
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeSynth{})

	w := doJSON(s, http.MethodPost, "/register", gin.H{"email": "a@b.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)

	var reg struct {
		UserID uint `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reg))
	assert.NotZero(t, reg.UserID)

	w = doJSON(s, http.MethodPost, "/login", gin.H{"email": "a@b.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)

	var login struct {
		UserID uint `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, reg.UserID, login.UserID)

	w = doJSON(s, http.MethodPost, "/login", gin.H{"email": "a@b.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginStorageFailureIsNotUnauthorized(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeSynth{})

	w := doJSON(s, http.MethodPost, "/register", gin.H{"email": "a@b.com", "password": "secret1"})
	require.Equal(t, http.StatusCreated, w.Code)

	// A store outage during login is a server error, not bad credentials.
	store.failWith = errors.Join(data.ErrDatabase, errors.New("connection refused"))
	w = doJSON(s, http.MethodPost, "/login", gin.H{"email": "a@b.com", "password": "secret1"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "Invalid email or password")

	store.failWith = nil
	w = doJSON(s, http.MethodPost, "/login", gin.H{"email": "a@b.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegisterMissingFields(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeSynth{})

	w := doJSON(s, http.MethodPost, "/register", gin.H{"email": "a@b.com"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(s, http.MethodPost, "/register", gin.H{"password": "secret1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeSynth{})

	w := doJSON(s, http.MethodPost, "/register", gin.H{"email": "a@b.com", "password": "first"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(s, http.MethodPost, "/register", gin.H{"email": "a@b.com", "password": "second"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The first record is untouched.
	assert.Equal(t, "first", store.users["a@b.com"].password)
}

func TestGenerateSoundMissingFields(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeSynth{})

	w := doJSON(s, http.MethodPost, "/generate-sound", gin.H{"userId": 1, "model": "music"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(s, http.MethodPost, "/generate-sound", gin.H{"prompt": "rain", "model": "music"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(s, http.MethodPost, "/generate-sound", gin.H{"prompt": "   ", "userId": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateSoundUnsupportedModel(t *testing.T) {
	synthesizer := &fakeSynth{}
	s := newTestServer(t, newFakeStore(), synthesizer)

	w := doJSON(s, http.MethodPost, "/generate-sound", gin.H{"prompt": "rain", "userId": 1, "model": "kazoo"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, synthesizer.calls)
	assert.Zero(t, s.cache.Len())
}

func TestGenerateSoundCacheFlow(t *testing.T) {
	store := newFakeStore()
	synthesizer := &fakeSynth{}
	s := newTestServer(t, store, synthesizer)

	body := gin.H{"prompt": "Rainy city street at night", "userId": 1, "model": "sound-effect"}

	w := doJSON(s, http.MethodPost, "/generate-sound", body)
	require.Equal(t, http.StatusOK, w.Code)

	var first struct {
		AudioFilePath string `json:"audioFilePath"`
		PromptID      uint   `json:"promptId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Contains(t, first.AudioFilePath, "/generated_audio/output_sound-effect_")
	assert.Equal(t, 1, synthesizer.calls)

	// The second identical request must not reach the synthesizer, but
	// still records a new history row.
	w = doJSON(s, http.MethodPost, "/generate-sound", body)
	require.Equal(t, http.StatusOK, w.Code)

	var second struct {
		AudioFilePath string `json:"audioFilePath"`
		PromptID      uint   `json:"promptId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, 1, synthesizer.calls)
	assert.Equal(t, first.AudioFilePath, second.AudioFilePath)
	assert.Greater(t, second.PromptID, first.PromptID)

	// Prompt normalization: stored lower-cased and trimmed.
	assert.Equal(t, "rainy city street at night", store.prompts[first.PromptID].Prompt)
}

func TestGenerateSoundCacheKeyedByModel(t *testing.T) {
	synthesizer := &fakeSynth{}
	s := newTestServer(t, newFakeStore(), synthesizer)

	w := doJSON(s, http.MethodPost, "/generate-sound", gin.H{"prompt": "rain", "userId": 1, "model": "sound-effect"})
	require.Equal(t, http.StatusOK, w.Code)
	w = doJSON(s, http.MethodPost, "/generate-sound", gin.H{"prompt": "rain", "userId": 1, "model": "music"})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 2, synthesizer.calls)
}

func TestGenerateSoundPredefined(t *testing.T) {
	store := newFakeStore()
	synthesizer := &fakeSynth{}
	s := newTestServer(t, store, synthesizer)

	w := doJSON(s, http.MethodPost, "/generate-sound", gin.H{
		"prompt":        "rain",
		"userId":        1,
		"model":         "predefined",
		"audioFilePath": "/static/rain.wav",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AudioFilePath string `json:"audioFilePath"`
		PromptID      uint   `json:"promptId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "/static/rain.wav", resp.AudioFilePath)
	assert.NotZero(t, resp.PromptID)
	assert.Zero(t, synthesizer.calls)
	assert.Zero(t, s.cache.Len(), "predefined prompts must not touch the cache")
}

func TestGenerateSoundPredefinedWithoutPath(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeSynth{})

	// Without a supplied path the predefined selector has nothing to
	// record and falls through to dispatch, which rejects it.
	w := doJSON(s, http.MethodPost, "/generate-sound", gin.H{"prompt": "rain", "userId": 1, "model": "predefined"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerateSoundBackendUnavailable(t *testing.T) {
	synthesizer := &fakeSynth{err: synth.ErrBackendUnavailable}
	s := newTestServer(t, newFakeStore(), synthesizer)

	w := doJSON(s, http.MethodPost, "/generate-sound", gin.H{"prompt": "rain", "userId": 1, "model": "music"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "not available")
}

func TestGenerateSoundStorageFailure(t *testing.T) {
	store := newFakeStore()
	store.failWith = data.ErrDatabase
	s := newTestServer(t, store, &fakeSynth{})

	w := doJSON(s, http.MethodPost, "/generate-sound", gin.H{"prompt": "rain", "userId": 1, "model": "music"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServeAudio(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeSynth{})

	w := doJSON(s, http.MethodGet, "/generated_audio/does-not-exist.wav", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "File not found")

	path := filepath.Join(s.config.AudioDir, "output_music_test.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF data"), 0o644))

	w = doJSON(s, http.MethodGet, "/generated_audio/output_music_test.wav", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RIFF data", w.Body.String())
}

func TestHistoryListNewestFirst(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeSynth{})

	for i := 0; i < 3; i++ {
		_, err := store.CreatePrompt(1, fmt.Sprintf("prompt %d", i), "url", "music")
		require.NoError(t, err)
	}
	_, err := store.CreatePrompt(2, "other user", "url", "music")
	require.NoError(t, err)

	w := doJSON(s, http.MethodGet, "/history/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var prompts []data.Prompt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prompts))
	require.Len(t, prompts, 3)
	for i := 1; i < len(prompts); i++ {
		assert.True(t, prompts[i-1].CreatedAt.After(prompts[i].CreatedAt))
	}
}

func TestDeleteHistoryScopedToOwner(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, store, &fakeSynth{})

	promptID, err := store.CreatePrompt(1, "mine", "url", "music")
	require.NoError(t, err)

	// User 2 cannot delete user 1's record.
	w := doJSON(s, http.MethodDelete, fmt.Sprintf("/history/2/%d", promptID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Len(t, store.prompts, 1)

	w = doJSON(s, http.MethodDelete, fmt.Sprintf("/history/1/%d", promptID), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, store.prompts)

	w = doJSON(s, http.MethodDelete, fmt.Sprintf("/history/1/%d", promptID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t, newFakeStore(), &fakeSynth{})

	w := doJSON(s, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}
