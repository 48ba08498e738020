package captioner

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/satriahrh/lensa/domain/entities"
	"github.com/satriahrh/lensa/domain/repositories"
)

// OpenAIConfig holds configuration for the OpenAI vision captioner
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Prompt    string
	MaxTokens int
}

// OpenAICaptioner captions images through a vision-capable chat model
type OpenAICaptioner struct {
	client    *openai.Client
	model     string
	prompt    string
	maxTokens int
	logger    *zap.Logger
}

var _ repositories.ImageCaptioner = (*OpenAICaptioner)(nil)

func NewOpenAICaptioner(config OpenAIConfig, logger *zap.Logger) (*OpenAICaptioner, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	model := config.Model
	if model == "" {
		model = openai.GPT4oMini
		logger.Info("Using default model", zap.String("model", model))
	}

	prompt := config.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	return &OpenAICaptioner{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     model,
		prompt:    prompt,
		maxTokens: maxTokens,
		logger:    logger,
	}, nil
}

func (o *OpenAICaptioner) Model() string {
	return o.model
}

// GenerateCaption implements repositories.ImageCaptioner
func (o *OpenAICaptioner) GenerateCaption(ctx context.Context, img *entities.UploadedImage) (string, error) {
	if img == nil || len(img.Data) == 0 {
		return "", entities.ErrEmptyImage
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", img.ContentType, base64.StdEncoding.EncodeToString(img.Data))

	o.logger.Info("Requesting caption",
		zap.String("model", o.model),
		zap.String("filename", img.Filename))

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.model,
		MaxTokens: o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: o.prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailLow,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate caption: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", entities.ErrEmptyCaption
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", entities.ErrEmptyCaption
	}

	o.logger.Info("Caption generated", zap.String("caption", text))
	return text, nil
}
