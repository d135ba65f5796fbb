package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	multipartMemory = 32 << 20
)

// errorResponse is the body of every failed request
type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Help    string `json:"help,omitempty"`
}

// Server exposes the strategy pipeline over HTTP
type Server struct {
	pipeline *Pipeline
	settings *Settings
	router   *gin.Engine
}

// NewServer creates a server and registers its routes
func NewServer(settings *Settings, pipeline *Pipeline) *Server {
	s := &Server{
		pipeline: pipeline,
		settings: settings,
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), requestLogger())
	router.Use(cors.New(corsConfig(settings.Server.CORSOrigins)))

	router.GET("/healthz", s.health)
	api := router.Group("/api")
	{
		api.POST("/generate-strategy", s.generateStrategy)
	}

	s.router = router
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.settings.Server.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("→ Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("→ Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) generateStrategy(c *gin.Context) {
	maxBytes := s.settings.Server.MaxUploadMB << 20
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)

	input, err := parseSubmission(c)
	if err != nil {
		writeError(c, err)
		return
	}

	strategy, err := s.pipeline.Run(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"strategy": strategy})
}

// formError marks a request that could not be read as a form
type formError struct {
	err error
}

func (e *formError) Error() string { return e.err.Error() }
func (e *formError) Unwrap() error { return e.err }

// parseSubmission reads the intake form into a SubmissionInput
func parseSubmission(c *gin.Context) (SubmissionInput, error) {
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			return SubmissionInput{}, &formError{err}
		}
		if err := c.Request.ParseForm(); err != nil {
			return SubmissionInput{}, &formError{err}
		}
	}

	input := SubmissionInput{
		ClientName:    c.PostForm("clientName"),
		Industry:      c.PostForm("industry"),
		WebsiteURL:    strings.TrimSpace(c.PostForm("websiteUrl")),
		SocialProfile: strings.TrimSpace(c.PostForm("socialProfile")),
		AuditLink:     strings.TrimSpace(c.PostForm("auditLink")),
	}

	auditFile, err := formFile(c, "auditDeck")
	if err != nil {
		return SubmissionInput{}, err
	}
	input.AuditFile = auditFile

	recording, err := parseRecording(c)
	if err != nil {
		return SubmissionInput{}, err
	}
	input.MeetingRecording = recording

	return input, nil
}

func parseRecording(c *gin.Context) (*RecordingInput, error) {
	kind := RecordingKind(strings.ToLower(strings.TrimSpace(c.PostForm("meetingRecordingType"))))
	content := c.PostForm("meetingRecordingContent")

	file, err := formFile(c, "meetingRecordingFile")
	if err != nil {
		return nil, err
	}

	if kind == "" {
		switch {
		case file != nil:
			kind = RecordingFile
		case strings.TrimSpace(content) != "":
			kind = RecordingTranscript
		default:
			return nil, nil
		}
	}

	switch kind {
	case RecordingTranscript:
		return &RecordingInput{Kind: kind, Text: content}, nil
	case RecordingLink:
		return &RecordingInput{Kind: kind, URL: strings.TrimSpace(content)}, nil
	case RecordingFile:
		return &RecordingInput{Kind: kind, File: file}, nil
	}
	return nil, &ValidationError{
		Field:   "meetingRecordingType",
		Message: fmt.Sprintf("must be one of transcript, link or file, got %q", kind),
	}
}

// formFile reads an optional upload; a missing or empty file is nil
func formFile(c *gin.Context, name string) (*UploadedFile, error) {
	header, err := c.FormFile(name)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, &formError{fmt.Errorf("reading %s: %w", name, err)}
	}
	if header.Size == 0 {
		return nil, nil
	}

	f, err := header.Open()
	if err != nil {
		return nil, &formError{fmt.Errorf("opening %s: %w", name, err)}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &formError{fmt.Errorf("reading %s: %w", name, err)}
	}
	return &UploadedFile{Filename: header.Filename, Data: data}, nil
}

// writeError maps pipeline errors to HTTP statuses
func writeError(c *gin.Context, err error) {
	log := logger.WithField(requestIDKey, c.GetString(requestIDKey))

	var (
		formErr  *formError
		validErr *ValidationError
		modelErr *ModelResponseError
	)
	switch {
	case errors.As(err, &formErr):
		log.Warnf("Invalid form: %v", err)
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid form data", Details: err.Error()})
	case errors.As(err, &validErr):
		log.Warnf("Invalid submission: %v", err)
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid submission", Details: validErr.Message})
	case errors.As(err, &modelErr):
		log.WithField("excerpt", modelErr.Excerpt).Errorf("Strategy generation failed: %v", err)
		resp := errorResponse{Error: "Failed to generate strategy", Details: err.Error()}
		if modelErr.Excerpt != "" {
			resp.Help = "Model response began with: " + modelErr.Excerpt
		}
		c.JSON(http.StatusInternalServerError, resp)
	case IsAuthError(err):
		log.Errorf("Authentication failed: %v", err)
		c.JSON(http.StatusUnauthorized, errorResponse{
			Error:   "Authentication with the completion model failed",
			Details: err.Error(),
			Help:    "Set ANTHROPIC_API_KEY in the environment or in .env.local and retry.",
		})
	default:
		log.Errorf("Strategy generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, errorResponse{
			Error:   "Failed to generate strategy",
			Details: err.Error(),
			Help:    "Retry the request; if a link keeps failing, paste its content instead.",
		})
	}
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", "X-Requested-With", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"method":      c.Request.Method,
			"path":        path,
			"status":      status,
			"duration_ms": time.Since(start).Milliseconds(),
			requestIDKey:  c.GetString(requestIDKey),
		})

		switch {
		case status >= 500:
			entry.Error("HTTP request")
		case status >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Info("HTTP request")
		}
	}
}
