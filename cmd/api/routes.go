package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"soundscape/internal/cache"
	"soundscape/internal/data"
	"soundscape/internal/synth"

	"github.com/gin-gonic/gin"
)

func (s *Server) SetupRoutes() {
	s.router.GET("/", s.HandleIndex)
	s.router.GET("/health", s.HealthCheck)

	s.router.POST("/register", s.HandleRegister)
	s.router.POST("/login", s.HandleLogin)

	s.router.POST("/generate-sound", s.HandleGenerateSound)
	s.router.GET("/generated_audio/:filename", s.HandleServeAudio)

	s.router.GET("/history/:userId", s.HandleGetHistory)
	s.router.DELETE("/history/:userId/:promptId", s.HandleDeleteHistory)
}

func (s *Server) HandleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Welcome to AI Sound Generator Backend!"})
}

func (s *Server) HandleRegister(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		s.SendError(c, http.StatusBadRequest, "Email and password are required", err.Error())
		return
	}

	userID, err := s.repo.RegisterUser(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrDuplicateEmail):
			s.SendError(c, http.StatusBadRequest, "Email already exists", "")
		case errors.Is(err, data.ErrValidation):
			s.SendError(c, http.StatusBadRequest, "Validation error", err.Error())
		default:
			s.logger.Printf("registration error for %s: %v", req.Email, err)
			s.SendError(c, http.StatusInternalServerError, "Error registering user", "")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"userId":  userID,
		"message": "Registration successful",
	})
}

func (s *Server) HandleLogin(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		s.SendError(c, http.StatusBadRequest, "Email and password are required", err.Error())
		return
	}

	userID, err := s.repo.AuthenticateUser(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, data.ErrInvalidCredentials) {
			s.SendError(c, http.StatusUnauthorized, "Invalid email or password", "")
			return
		}
		s.logger.Printf("login error for %s: %v", req.Email, err)
		s.SendError(c, http.StatusInternalServerError, "Error logging in", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":  userID,
		"message": "Login successful",
	})
}

func (s *Server) HandleGenerateSound(c *gin.Context) {
	var req struct {
		Prompt        string `json:"prompt"`
		UserID        uint   `json:"userId"`
		Model         string `json:"model"`
		AudioFilePath string `json:"audioFilePath"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		s.SendError(c, http.StatusBadRequest, "Prompt and userId are required", err.Error())
		return
	}

	prompt := strings.ToLower(strings.TrimSpace(req.Prompt))
	if prompt == "" || req.UserID == 0 {
		s.SendError(c, http.StatusBadRequest, "Prompt and userId are required", "")
		return
	}

	if req.Model == "" {
		req.Model = string(synth.BackendMusic)
	}
	backend := synth.Backend(req.Model)

	// Predefined prompts carry their own audio path; no synthesis and no
	// cache involvement, just a history record.
	if backend == synth.BackendPredefined && req.AudioFilePath != "" {
		promptID, err := s.repo.CreatePrompt(req.UserID, prompt, req.AudioFilePath, req.Model)
		if err != nil {
			s.logger.Printf("error storing predefined prompt (user=%d, prompt=%q): %v", req.UserID, prompt, err)
			s.SendError(c, http.StatusInternalServerError, "Failed to store predefined prompt in database", "")
			return
		}
		s.logger.Printf("predefined prompt stored with ID %d", promptID)
		c.JSON(http.StatusOK, gin.H{
			"audioFilePath": req.AudioFilePath,
			"promptId":      promptID,
		})
		return
	}

	if !s.dispatcher.Supported(backend) {
		s.SendError(c, http.StatusBadRequest, "Invalid model specified. Choose 'music', 'sound-effect', or 'speech'.", "")
		return
	}

	durationClass := cache.DurationClass(synth.FixedDuration(backend))
	key := cache.Key(prompt, durationClass, req.Model)

	if audioURL, ok := s.cache.Lookup(key); ok {
		s.metrics.CacheHitCount.Add(1)
		s.logger.Printf("cache hit for prompt %q (model=%s)", prompt, req.Model)

		promptID, err := s.repo.CreatePrompt(req.UserID, prompt, audioURL, req.Model)
		if err != nil {
			s.logger.Printf("error storing prompt (user=%d, prompt=%q): %v", req.UserID, prompt, err)
			s.SendError(c, http.StatusInternalServerError, "Failed to store prompt in database", "")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"audioFilePath": audioURL,
			"promptId":      promptID,
		})
		return
	}

	s.logger.Printf("received request: prompt=%q, model=%s, userId=%d", prompt, req.Model, req.UserID)

	// Concurrent identical misses run one synthesis and share its result.
	audioURL, err := s.cache.Do(key, func() (string, error) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.SynthTimeout)
		defer cancel()

		filename, err := s.dispatcher.Generate(ctx, prompt, backend)
		if err != nil {
			return "", err
		}
		return s.config.PublicBaseURL + "/generated_audio/" + filename, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, synth.ErrUnsupportedBackend):
			s.SendError(c, http.StatusBadRequest, "Invalid model specified. Choose 'music', 'sound-effect', or 'speech'.", "")
		case errors.Is(err, synth.ErrInvalidInput):
			s.SendError(c, http.StatusBadRequest, "Invalid synthesis request", err.Error())
		case errors.Is(err, synth.ErrBackendUnavailable):
			s.logger.Printf("backend unavailable (model=%s, prompt=%q, user=%d): %v", req.Model, prompt, req.UserID, err)
			s.SendError(c, http.StatusInternalServerError, "Generation model is not available", "")
		default:
			s.logger.Printf("error generating sound (model=%s, prompt=%q, user=%d): %v", req.Model, prompt, req.UserID, err)
			s.SendError(c, http.StatusInternalServerError, "Failed to generate sound", err.Error())
		}
		return
	}

	promptID, err := s.repo.CreatePrompt(req.UserID, prompt, audioURL, req.Model)
	if err != nil {
		s.logger.Printf("error storing prompt (user=%d, prompt=%q): %v", req.UserID, prompt, err)
		s.SendError(c, http.StatusInternalServerError, "Failed to store prompt in database", "")
		return
	}

	s.cache.Store(key, audioURL)

	c.JSON(http.StatusOK, gin.H{
		"audioFilePath": audioURL,
		"promptId":      promptID,
	})
}

func (s *Server) HandleServeAudio(c *gin.Context) {
	filename := filepath.Base(c.Param("filename"))
	path := filepath.Join(s.config.AudioDir, filename)

	if _, err := os.Stat(path); err != nil {
		s.logger.Printf("audio file not found: %s", path)
		s.SendError(c, http.StatusNotFound, "File not found", "")
		return
	}

	c.File(path)
}

func (s *Server) HandleGetHistory(c *gin.Context) {
	userID, err := ParseID(c.Param("userId"))
	if err != nil {
		s.SendError(c, http.StatusBadRequest, "Invalid user ID", "")
		return
	}

	prompts, err := s.repo.ListPrompts(userID)
	if err != nil {
		s.logger.Printf("error fetching history for user %d: %v", userID, err)
		s.SendError(c, http.StatusInternalServerError, "Error fetching history", "")
		return
	}
	if prompts == nil {
		prompts = []data.Prompt{}
	}

	c.JSON(http.StatusOK, prompts)
}

func (s *Server) HandleDeleteHistory(c *gin.Context) {
	userID, err := ParseID(c.Param("userId"))
	if err != nil {
		s.SendError(c, http.StatusBadRequest, "Invalid user ID", "")
		return
	}

	promptID, err := ParseID(c.Param("promptId"))
	if err != nil {
		s.SendError(c, http.StatusBadRequest, "Invalid prompt ID", "")
		return
	}

	if err := s.repo.DeletePrompt(userID, promptID); err != nil {
		if errors.Is(err, data.ErrNotFound) {
			s.SendError(c, http.StatusNotFound, "Prompt not found or not authorized", "")
			return
		}
		s.logger.Printf("error deleting prompt %d for user %d: %v", promptID, userID, err)
		s.SendError(c, http.StatusInternalServerError, "Error deleting prompt", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Prompt deleted successfully"})
}
