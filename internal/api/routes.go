package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/httprate"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/lensa/adapters/microphone"
	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/domain/repositories"
	"github.com/satriahrh/lensa/internal/auth"
	"github.com/satriahrh/lensa/internal/config"
	"github.com/satriahrh/lensa/internal/pipeline"
	"github.com/satriahrh/lensa/internal/web"
	"github.com/satriahrh/lensa/internal/websocket"
	"github.com/satriahrh/lensa/usecase"
)

const (
	defaultVoiceEncoding   = "WEBM_OPUS"
	defaultVoiceSampleRate = 48000
)

// Dependencies are the services the HTTP surface is built on
type Dependencies struct {
	Descriptions *usecase.DescriptionService
	Conversation *usecase.ConversationService
	Sessions     repositories.SessionRepository
	Tokens       *auth.TokenIssuer
	Hub          *websocket.Hub
	Server       config.ServerConfig
	Session      config.SessionConfig
	// Language given to new sessions; empty keeps the session default
	Language string
	Logger   *zap.Logger
}

type handler struct {
	deps Dependencies
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Dependencies) {
	h := &handler{deps: deps}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"service": "lensa",
			"clients": deps.Hub.ClientCount(),
		})
	})

	// Browser page
	e.StaticFS("/", web.FS())

	// API v1 routes
	v1 := e.Group("/api/v1", h.withSession)
	limiter := h.rateLimiter()

	v1.GET("/session", h.getSession)
	v1.DELETE("/session", h.deleteSession)
	v1.POST("/describe", h.describe, limiter)
	v1.POST("/voice", h.voice, limiter)

	// Voice streaming for the session bound by the cookie
	e.GET("/ws", func(c echo.Context) error {
		return websocket.HandleWebSocket(deps.Hub, c, sessionFrom(c).ID)
	}, h.requireSession)
}

// rateLimiter caps the expensive stage endpoints per client IP
func (h *handler) rateLimiter() echo.MiddlewareFunc {
	if h.deps.Server.RateLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	return echo.WrapMiddleware(httprate.Limit(
		h.deps.Server.RateLimit,
		time.Minute,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(ErrorResponse{
				Error:   "rate_limited",
				Message: "Too many requests, try again in a minute",
			})
		}),
	))
}

func (h *handler) getSession(c echo.Context) error {
	return c.JSON(http.StatusOK, newSessionResponse(sessionFrom(c)))
}

func (h *handler) deleteSession(c echo.Context) error {
	session := sessionFrom(c)
	if err := h.deps.Sessions.Delete(c.Request().Context(), session.ID); err != nil && !errors.Is(err, entities.ErrSessionNotFound) {
		h.deps.Logger.Error("Failed to delete session", zap.String("sessionID", session.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "Failed to delete session",
		})
	}

	h.clearSessionCookie(c)
	h.deps.Logger.Info("Session deleted", zap.String("sessionID", session.ID))
	return c.NoContent(http.StatusNoContent)
}

// describe captions an uploaded image and speaks the caption
func (h *handler) describe(c echo.Context) error {
	session := sessionFrom(c)

	file, err := c.FormFile("image")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_image",
			Message: "Multipart field 'image' is required",
		})
	}

	data, err := readFormFile(file)
	if err != nil {
		h.deps.Logger.Warn("Failed to read uploaded image", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to read uploaded image",
		})
	}

	description, err := h.deps.Descriptions.Describe(c.Request().Context(), session.ID, file.Filename, data, func(event pipeline.Event) {
		h.deps.Hub.PublishProgress(session.ID, event)
	})
	if err != nil {
		return h.respondError(c, session.ID, err)
	}

	return c.JSON(http.StatusOK, newDescribeResponse(description))
}

// voice answers a recorded voice query about the current caption
func (h *handler) voice(c echo.Context) error {
	session := sessionFrom(c)

	file, err := c.FormFile("audio")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_audio",
			Message: "Multipart field 'audio' is required",
		})
	}

	audioConfig, err := voiceAudioConfig(c, session)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
	}

	data, err := readFormFile(file)
	if err != nil || len(data) == 0 {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Failed to read uploaded audio",
		})
	}

	h.deps.Logger.Info("Voice query received",
		zap.String("sessionID", session.ID),
		zap.String("encoding", audioConfig.Encoding),
		zap.String("size", humanize.Bytes(uint64(len(data)))))

	mic := microphone.NewRecorded(data, audioConfig, microphone.DefaultFrameSize)
	reply, err := h.deps.Conversation.Ask(c.Request().Context(), session.ID, mic)
	if err != nil {
		return h.respondError(c, session.ID, err)
	}

	// recognition failures are recovered: the notice travels in a 200 body
	return c.JSON(http.StatusOK, newVoiceResponse(reply))
}

func voiceAudioConfig(c echo.Context, session *entities.Session) (repositories.AudioConfig, error) {
	config := repositories.AudioConfig{
		Encoding:   defaultVoiceEncoding,
		SampleRate: defaultVoiceSampleRate,
		Language:   session.Language,
	}
	if v := strings.TrimSpace(c.FormValue("encoding")); v != "" {
		config.Encoding = strings.ToUpper(v)
	}
	if v := strings.TrimSpace(c.FormValue("sample_rate")); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate < 8000 || rate > 48000 {
			return config, errors.New("sample_rate must be between 8000 and 48000")
		}
		config.SampleRate = rate
	}
	if v := strings.TrimSpace(c.FormValue("language")); v != "" {
		config.Language = v
	}
	return config, nil
}

func readFormFile(file *multipart.FileHeader) ([]byte, error) {
	src, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()
	return io.ReadAll(src)
}

// respondError maps domain and stage errors to HTTP responses
func (h *handler) respondError(c echo.Context, sessionID string, err error) error {
	var stage string
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		stage = stageErr.Stage
	}

	status, resp := http.StatusBadGateway, ErrorResponse{
		Error:   "upstream_failed",
		Message: "A model provider failed, try again",
		Stage:   stage,
	}

	switch {
	case errors.Is(err, entities.ErrUnsupportedImageFormat):
		status, resp = http.StatusUnsupportedMediaType, ErrorResponse{Error: "unsupported_image", Message: err.Error(), Stage: stage}
	case errors.Is(err, entities.ErrEmptyImage), errors.Is(err, entities.ErrImageDecode):
		status, resp = http.StatusBadRequest, ErrorResponse{Error: "invalid_image", Message: err.Error(), Stage: stage}
	case errors.Is(err, entities.ErrNoCaption):
		status, resp = http.StatusConflict, ErrorResponse{Error: "no_caption", Message: err.Error()}
	case errors.Is(err, entities.ErrSessionNotFound):
		status, resp = http.StatusNotFound, ErrorResponse{Error: "session_not_found", Message: err.Error()}
	}

	if status >= http.StatusInternalServerError {
		h.deps.Logger.Error("Request failed", zap.String("sessionID", sessionID), zap.String("stage", stage), zap.Error(err))
	} else {
		h.deps.Logger.Info("Request rejected", zap.String("sessionID", sessionID), zap.Int("status", status), zap.Error(err))
	}
	return c.JSON(status, resp)
}
