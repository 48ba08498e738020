package captioner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/domain/repositories"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultTemperature    = 0.2
	defaultMaxTokens      = 60
	defaultTimeoutSeconds = 30
)

// DefaultPrompt asks for the short, literal description a captioning model would give
const DefaultPrompt = "Write one short sentence describing this image, like an image caption. " +
	"Start with a lowercase article, do not add any preamble."

// GeminiConfig holds configuration for the Gemini captioner
type GeminiConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Prompt          string
	Temperature     float32
	MaxOutputTokens int
	TimeoutSeconds  int
}

// GeminiCaptioner implements ImageCaptioner using Google's Gemini API
type GeminiCaptioner struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	prompt          string
	temperature     float32
	maxOutputTokens int
	timeoutSeconds  int
}

var _ repositories.ImageCaptioner = (*GeminiCaptioner)(nil)

// ValidateGeminiConfig validates the GeminiConfig
func ValidateGeminiConfig(config GeminiConfig) error {
	if config.APIKey == "" {
		return fmt.Errorf("Google AI API key is required")
	}

	if config.Temperature != 0 && (config.Temperature < 0 || config.Temperature > 1) {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", config.Temperature)
	}

	if config.MaxOutputTokens < 0 {
		return fmt.Errorf("maxOutputTokens must be positive, got %d", config.MaxOutputTokens)
	}

	if config.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must be positive, got %d", config.TimeoutSeconds)
	}

	return nil
}

// NewGeminiCaptioner creates a new Gemini captioner
func NewGeminiCaptioner(ctx context.Context, config GeminiConfig, logger *zap.Logger) (*GeminiCaptioner, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = config.BaseURL
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
		logger.Info("Using default model", zap.String("model", model))
	}

	prompt := config.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	temperature := config.Temperature
	if temperature == 0 {
		temperature = float32(defaultTemperature)
		logger.Info("Using default temperature", zap.Float32("temperature", temperature))
	}

	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
		logger.Info("Using default maxOutputTokens", zap.Int("maxOutputTokens", maxOutputTokens))
	}

	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
		logger.Info("Using default timeoutSeconds", zap.Int("timeoutSeconds", timeoutSeconds))
	}

	return &GeminiCaptioner{
		client:          client,
		logger:          logger,
		model:           model,
		prompt:          prompt,
		temperature:     temperature,
		maxOutputTokens: maxOutputTokens,
		timeoutSeconds:  timeoutSeconds,
	}, nil
}

// Model implements repositories.ImageCaptioner
func (g *GeminiCaptioner) Model() string {
	return g.model
}

// GenerateCaption sends the image inline with the captioning prompt
func (g *GeminiCaptioner) GenerateCaption(ctx context.Context, img *entities.UploadedImage) (string, error) {
	if img == nil || len(img.Data) == 0 {
		return "", entities.ErrEmptyImage
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(g.prompt),
			genai.NewPartFromBytes(img.Data, img.ContentType),
		}, genai.RoleUser),
	}

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(g.temperature),
		MaxOutputTokens: int32(g.maxOutputTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(g.timeoutSeconds)*time.Second)
	defer cancel()

	g.logger.Info("Requesting caption",
		zap.String("model", g.model),
		zap.String("filename", img.Filename),
		zap.String("size", humanize.Bytes(uint64(len(img.Data)))))

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("failed to generate caption: %w", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", entities.ErrEmptyCaption
	}

	var caption strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			caption.WriteString(part.Text)
		}
	}

	text := strings.TrimSpace(caption.String())
	if text == "" {
		return "", entities.ErrEmptyCaption
	}

	g.logger.Info("Caption generated", zap.String("caption", text))
	return text, nil
}
